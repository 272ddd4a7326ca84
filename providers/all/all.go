// Package all registers every livecoach provider with a single import:
//
//	import _ "github.com/AltairaLabs/livecoach/providers/all"
package all

import (
	// Register Groq and OpenRouter
	_ "github.com/AltairaLabs/livecoach/providers/chat"

	// Register Gemini Live
	_ "github.com/AltairaLabs/livecoach/providers/gemini"
)
