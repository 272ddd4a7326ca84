package gemini

// Client messages of the Live API. Field names follow the wire format.

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string                   `json:"model"`
	GenerationConfig         generationConfig         `json:"generationConfig"`
	SystemInstruction        content                  `json:"systemInstruction"`
	Tools                    []map[string]any         `json:"tools,omitempty"`
	InputAudioTranscription  inputAudioTranscription  `json:"inputAudioTranscription"`
	ContextWindowCompression contextWindowCompression `json:"contextWindowCompression"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	LanguageCode string `json:"languageCode,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type inputAudioTranscription struct {
	EnableSpeakerDiarization bool `json:"enableSpeakerDiarization"`
	MinSpeakerCount          int  `json:"minSpeakerCount"`
	MaxSpeakerCount          int  `json:"maxSpeakerCount"`
}

type contextWindowCompression struct {
	SlidingWindow struct{} `json:"slidingWindow"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *blob   `json:"audio,omitempty"`
	Media *blob   `json:"media,omitempty"`
	Text  *string `json:"text,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Server messages.

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
	Error         *serverError   `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn          *content            `json:"modelTurn,omitempty"`
	InputTranscription *inputTranscription `json:"inputTranscription,omitempty"`
	GenerationComplete bool                `json:"generationComplete,omitempty"`
	TurnComplete       bool                `json:"turnComplete,omitempty"`
	Interrupted        bool                `json:"interrupted,omitempty"`
}

// inputTranscription carries either plain text or diarized results.
type inputTranscription struct {
	Text    string                `json:"text,omitempty"`
	Results []transcriptionResult `json:"results,omitempty"`
}

type transcriptionResult struct {
	Transcript string `json:"transcript"`
	SpeakerID  int    `json:"speakerId,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type serverError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
