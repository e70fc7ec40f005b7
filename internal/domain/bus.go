package domain

// MessageBus carries normalized messages from connections to the plugin
// layer.
type MessageBus interface {
	Publish(msg Message)
	Subscribe() <-chan Message
	Close()
}
