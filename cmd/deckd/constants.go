package main

import "time"

// Serial link defaults
const (
	defaultSerialPort  = "COM6"
	defaultBaudRate    = 9600
	defaultReadTimeout = 1 * time.Second // per-read timeout on the serial port

	// Fixed delay between reconnect attempts after a connect failure or
	// a lost session. Retries continue until shutdown.
	defaultRetryDelayMS = 2000
)

// Dispatch defaults
const (
	// Delay between successive synthesized volume key events so the OS
	// does not coalesce them into a single step.
	defaultKeyEventDelayMS = 10

	// Buffer for the dispatcher event queue (serial lines + IPC events).
	eventQueueSize = 64
)

// Shutdown
const (
	// How long main waits for the serial worker to exit before proceeding
	// with shutdown anyway.
	workerJoinTimeout = 2 * time.Second
)

// Button map defaults
const (
	defaultButtonsFile = "config.json"
	defaultButtonCount = 9 // BUTTON_1 .. BUTTON_9
	demoButtonKey      = "BUTTON_1"
	demoButtonLink     = "https://www.youtube.com"
)

// Wire protocol tokens (newline-delimited ASCII from the firmware)
const (
	tokenVolumePrefix = "VOLUME_"
	tokenMute         = "MUTE"
	tokenMedia        = "MEDIA"
)
