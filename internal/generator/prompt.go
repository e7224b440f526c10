package generator

import (
	"strings"
	"text/template"
)

// systemTemplate is the instruction plus retrieved context sent as the system message;
// the question itself goes in the user message.
var systemTemplate = template.Must(template.New("system").Parse(
	`Use the following pieces of context to answer the user's question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
{{range $i, $c := .Chunks}}{{if $i}}

{{end}}{{$c}}{{end}}`))

type promptData struct {
	Chunks []string
}

// renderSystem renders the system message for chunks.
func renderSystem(chunks []string) (string, error) {
	var b strings.Builder
	if err := systemTemplate.Execute(&b, promptData{Chunks: chunks}); err != nil {
		return "", err
	}
	return b.String(), nil
}
