package emailsvc

import (
	"net/mail"
	"testing"
	texttmpl "text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudoor/hudoor/core"
	testutil "github.com/hudoor/hudoor/tests"
)

func TestRecorder_SendMessages(t *testing.T) {
	conf := &core.Config{AppName: "Hudoor"}
	svc := NewRecorder(conf, testutil.Logger())
	to := []mail.Address{{Name: "Operator", Address: "operator@example.com"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{
			To:           to,
			Subject:      "templated",
			Template:     texttmpl.Must(texttmpl.New("t").Parse("{{.}} present")),
			TemplateData: 12,
		},
		&core.EmailMessage{Subject: "nobody", BodyStr: "lost"},
		&core.EmailMessage{To: to, Subject: "empty"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Equal(t, "12 present", sent[1].TextContent)

	body := svc.format(sent[1])
	assert.Contains(t, body, "Subject: [Hudoor] templated\r\n")
	assert.Contains(t, body, `To: "Operator" <operator@example.com>`)
	assert.Contains(t, body, "\r\n\r\n12 present\r\n")
}
