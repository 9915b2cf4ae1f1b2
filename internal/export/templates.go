package export

import (
	"bytes"
	"html/template"

	"github.com/yamakaho2509/taiwa2/internal/store"
)

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.DisplayName}}さんの振り返り</title>
</head>
<body>
<h1>{{.DisplayName}}さんの振り返り</h1>
{{range .Entries}}<p><strong>{{.Speaker}}:</strong> {{.Content}}</p>
{{end}}</body>
</html>`))

type transcriptEntry struct {
	Speaker string
	Content string
}

type transcriptData struct {
	DisplayName string
	Entries     []transcriptEntry
}

func renderTranscriptHTML(displayName string, messages []store.Message) (string, error) {
	data := transcriptData{DisplayName: displayName}
	for _, message := range messages {
		speaker := "ユーザー"
		if message.Role == store.RoleAssistant {
			speaker = "チャットボット"
		}
		data.Entries = append(data.Entries, transcriptEntry{Speaker: speaker, Content: message.Content})
	}

	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
