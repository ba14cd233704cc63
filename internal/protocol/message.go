package protocol

import "encoding/json"

type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Subscribe struct {
	Message
	Selector string `json:"selector"`
	Single   bool   `json:"single,omitempty"`
}

type Unsubscribe struct {
	Message
}

func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}
