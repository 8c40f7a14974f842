// Package led drives the board status LED from device state: solid while a
// host streams, heartbeat while idle, blink while paused, off across bus
// suspend.
package led

// Controller abstracts LED hardware across boards. Implementations own the
// board-specific LED naming.
type Controller interface {
	// Set switches an LED on or off with an optional pattern ("solid",
	// "blink", "heartbeat"); an empty pattern leaves the trigger alone.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types this controller can drive.
	Available() []string

	// Patterns returns the supported pattern names.
	Patterns() []string
}
