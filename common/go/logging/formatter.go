package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	richLogFormat = "%time% [%level%] %message%%fields%\n"
	rawLogFormat  = "%message%%fields%\n"
)

// Formatter renders entries using a simple replacement-based format string.
type Formatter struct {
	LogFormat string
}

// Format implements the logrus.Formatter interface.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.LogFormat
	output = strings.Replace(output, "%time%", entry.Time.Format("15:04:05"), 1)
	output = strings.Replace(output, "%level%", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%message%", entry.Message, 1)
	output = strings.Replace(output, "%fields%", formatFields(entry.Data), 1)
	return []byte(output), nil
}

func formatFields(data logrus.Fields) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, data[key]))
	}
	return " [" + strings.Join(pairs, " ") + "]"
}
