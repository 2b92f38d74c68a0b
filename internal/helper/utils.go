package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	return id.String(), nil
}

// UniquePath returns dir/<uuid><ext of original>, so concurrent uploads never share a path
func UniquePath(dir, original string) (string, error) {
	id, err := GenerateUUID()
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	return filepath.Join(dir, id+ext), nil
}

// pretty print
func PrettyPrint(w io.Writer, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Fprintln(w, string(b))
}
