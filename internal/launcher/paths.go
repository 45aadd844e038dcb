package launcher

// defaultPaths maps known application names to their per-OS executable or
// bundle. A missing GOOS entry means the app is unsupported there.
var defaultPaths = map[string]map[string]string{
	"spotify": {
		"windows": `C:\Users\%USERNAME%\AppData\Roaming\Spotify\Spotify.exe`,
		"darwin":  "/Applications/Spotify.app",
		"linux":   "spotify",
	},
	"chrome": {
		"windows": `C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		"darwin":  "/Applications/Google Chrome.app",
		"linux":   "google-chrome",
	},
	"firefox": {
		"windows": `C:\Program Files\Mozilla Firefox\firefox.exe`,
		"darwin":  "/Applications/Firefox.app",
		"linux":   "firefox",
	},
	"telegram": {
		"windows": `E:\Telegram Desktop\Telegram.exe`,
		"darwin":  "/Applications/Telegram.app",
		"linux":   "telegram-desktop",
	},
	"notepad": {
		"windows": "notepad.exe",
		"darwin":  "/Applications/TextEdit.app",
		"linux":   "gedit",
	},
	"calculator": {
		"windows": "calc.exe",
		"darwin":  "/Applications/Calculator.app",
		"linux":   "gnome-calculator",
	},
}

// DefaultPaths returns the known applications for goos.
func DefaultPaths(goos string) map[string]string {
	out := make(map[string]string, len(defaultPaths))
	for app, byOS := range defaultPaths {
		if p, ok := byOS[goos]; ok {
			out[app] = p
		}
	}
	return out
}

// Known reports whether name is a predefined application on any OS.
func Known(name string) bool {
	_, ok := defaultPaths[name]
	return ok
}
