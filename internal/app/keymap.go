package app

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyCtrlC     = "ctrl+c"
	KeyEnter     = "enter"
	KeyEsc       = "esc"
	KeyBackspace = "backspace"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyTab       = "tab"
	KeyJ         = "j"
	KeyK         = "k"
	KeyNoSpeaker = "0"
	KeyNext      = "n"
	KeyEdit      = "e"
	KeyEnd       = "x"
	KeyAnalyze   = "a"
	KeyReset     = "r"
	KeyExport    = "w"
	KeyYes       = "y"
	KeyNo        = "n"
)

// speakerIndex maps keys 1-9 to a student index.
func speakerIndex(key string) (int, bool) {
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return 0, false
	}
	return int(key[0] - '1'), true
}
