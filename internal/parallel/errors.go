package parallel

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// WriteErrorsCSV writes failures as item,extra_kwargs,error rows. Nothing
// is written when errs is empty.
func WriteErrorsCSV[T any](path string, errs []ErrorInfo[T]) error {
	if len(errs) == 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create errors file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"item", "extra_kwargs", "error"}); err != nil {
		return err
	}
	for _, e := range errs {
		row := []string{fmt.Sprint(e.Item), formatArgs(e.ExtraArgs), errString(e.Err)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write errors file: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}
	return f.Close()
}

// formatArgs renders extra args as "{key: value, ...}" in key order
func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + args[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
