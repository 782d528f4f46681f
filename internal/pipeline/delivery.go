package pipeline

import (
	"github.com/programme-lv/rayjudge/api"
)

//go:generate mockgen -destination=mocks/acknowledger.go -package=mocks . Acknowledger

// Acknowledger is the channel handle a delivery arrived on. Its delivery
// tags are only valid for it. *amqp091.Channel satisfies it.
type Acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
	Reject(tag uint64, requeue bool) error
}

// Delivery is one inbound broker message handed to the Router.
type Delivery struct {
	Acknowledger    Acknowledger
	Tag             uint64
	Body            []byte
	ContentEncoding string
	// DeliveryCount is the 1-based attempt number as far as the broker
	// reports it.
	DeliveryCount int64
}

// WorkItem is a decoded delivery waiting for a worker.
type WorkItem struct {
	Acknowledger  Acknowledger
	Tag           uint64
	Config        *api.JudgeConfig
	DeliveryCount int64
}
