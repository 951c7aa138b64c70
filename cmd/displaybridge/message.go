package main

import (
	"encoding/json"
	"fmt"
)

// DisplayMessage is the datagram payload read by the display driver.
type DisplayMessage struct {
	BmpNumber  int `json:"bmp_number"`
	Brightness int `json:"brightness"`
}

// EncodeDisplayMessage renders a message as a single JSON text datagram:
//
//	{"bmp_number":101,"brightness":159}
func EncodeDisplayMessage(m DisplayMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode display message: %w", err)
	}
	return b, nil
}

// DecodeDisplayMessage parses a datagram produced by EncodeDisplayMessage.
func DecodeDisplayMessage(b []byte) (DisplayMessage, error) {
	var m DisplayMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return DisplayMessage{}, fmt.Errorf("decode display message: %w", err)
	}
	return m, nil
}

func (m DisplayMessage) String() string {
	return fmt.Sprintf("bmp=%d brightness=%d", m.BmpNumber, m.Brightness)
}
