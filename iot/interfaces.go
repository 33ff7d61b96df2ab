package iot

import "context"

// CommandPublisher sends commands to devices
type CommandPublisher interface {
	PublishCommand(ctx context.Context, deviceType, deviceID, command, format string, data any) error
}

// EventWriter persists decoded events
type EventWriter interface {
	Write(ctx context.Context, event *Event) error
}
