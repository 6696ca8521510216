// Package browser opens URLs in the user's default browser, used for the
// OAuth consent flow and the Gmail permalink tool.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenURL launches the default browser on the given URL. The command is
// started, not waited on; consent flows complete out of band.
func OpenURL(url string) error {
	if url == "" {
		return fmt.Errorf("browser: url is required")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: failed to open %s: %w", url, err)
	}
	return nil
}
