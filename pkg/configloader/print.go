package configloader

import (
	"encoding/json"
	"fmt"
	"io"
)

// Print пишет конфиг в w как форматированный JSON.
func Print(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("configloader: marshal: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
