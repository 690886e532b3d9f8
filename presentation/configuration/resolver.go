package configuration

import (
	"fmt"
	"os"
	"path/filepath"

	"voicelink/domain/app"
)

const fileName = "connection.json"

type resolver interface {
	resolve() (string, error)
}

// userResolver places the file in the user's configuration directory.
type userResolver struct{}

func (userResolver) resolve() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate the configuration directory: %w", err)
	}
	return filepath.Join(dir, app.Name, fileName), nil
}

type fixedResolver string

func (r fixedResolver) resolve() (string, error) {
	return string(r), nil
}
