// conf/consts.go hard coded constants
package conf

const (
	SampleRate   = 16000 // Capture sample rate expected by speech recognizers
	SampleWidth  = 4     // Bytes per sample, 32-bit IEEE float
	NumChannels  = 1     // Mono capture only
	PeriodFrames = 1024  // Frames per driver callback

	BackendOpenAI        = "openai"
	BackendWhisperServer = "whisper-server"

	GoogleTranslateEndpoint = "https://translation.googleapis.com/language/translate/v2"
)
