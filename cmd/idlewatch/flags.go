package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type ServeFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Watch      bool          // Watch mode for continuous monitoring
	Interval   time.Duration // Watch interval
}

type ActivityFlags struct {
	Session    string
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
