package models

import "encoding/json"

const (
	EnvelopeSuccess = "success"
	EnvelopeError   = "error"
)

// Envelope is the uniform response wrapper of the staff API.
type Envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type OrdersData struct {
	Orders []Order `json:"orders"`
}

type OrderData struct {
	Order *Order `json:"order"`
}

type StatusUpdate struct {
	Status string `json:"status"`
}

// RawEnvelope keeps data undecoded, used for responses whose data is free-form.
type RawEnvelope = Envelope[json.RawMessage]

func Success[T any](message string, data T) Envelope[T] {
	return Envelope[T]{Status: EnvelopeSuccess, Message: message, Data: data}
}

func Failure(message string) Envelope[any] {
	return Envelope[any]{Status: EnvelopeError, Message: message}
}
