package types

// QAPair is one question/answer exchange in a session history.
type QAPair struct {
	Question string `json:"question" bson:"question"`
	Answer   string `json:"answer" bson:"answer"`
}
