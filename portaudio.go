package voxscope

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paInitMutex sync.Mutex
	paInitCount int
)

// SafePortAudioInit initializes PortAudio on the first call and counts the
// users after that.
func SafePortAudioInit() error {
	paInitMutex.Lock()
	defer paInitMutex.Unlock()

	if paInitCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio initialization failed: %w", err)
		}
		fmt.Printf("[Device] %s\n", portaudio.VersionText())
	}
	paInitCount++
	return nil
}

// SafePortAudioTerminate releases one user; the last one terminates PortAudio.
func SafePortAudioTerminate() {
	paInitMutex.Lock()
	defer paInitMutex.Unlock()

	if paInitCount == 0 {
		return
	}
	paInitCount--
	if paInitCount == 0 {
		if err := portaudio.Terminate(); err != nil {
			fmt.Printf("[Device] portaudio terminate failed: %v\n", err)
		}
	}
}
