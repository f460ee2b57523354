package api

// NoSpeech replaces an empty provider transcript.
const NoSpeech = "No speech detected"

// DemoTranscripts cycle when no speech-to-text key is configured.
var DemoTranscripts = []string{
	"Please add your ElevenLabs API key to enable transcription.",
	"Recording is working, but transcription requires an API key.",
	"Add ELEVENLABS_API_KEY to your .env file.",
	"Visit elevenlabs.io to get your API key.",
	"Once you add the API key, restart the server.",
}

// DemoAnalysis is returned when no OpenAI key is configured.
const DemoAnalysis = `**Demo Analysis (Add OpenAI API Key for Real Analysis)**

This is a demonstration response. To get real GPT-4 analysis:
1. Add your OpenAI API key to the .env file as OPENAI_API_KEY
2. Restart the server
3. Run the analysis again

**Sample Analysis Structure:**

**Collaborative Thinking Patterns:**
- Students demonstrated active listening and building upon each other's ideas
- Evidence of respectful disagreement and constructive dialogue

**Idea Development:**
- Initial concepts were introduced and refined through group discussion
- Complex topics were broken down collaboratively

**Participation Patterns:**
- Balanced participation among group members
- Some students took leadership roles while others provided supportive input

**Critical Thinking Indicators:**
- Students asked clarifying questions
- Evidence of analysis and synthesis of different perspectives

Add your OpenAI API key to get detailed, personalized analysis of your specific conversation.`
