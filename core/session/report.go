package session

import (
	"net/mail"
	"text/template"

	"github.com/hudoor/hudoor/core"
)

var reportTmpl = template.Must(template.New("report").Parse(`Attendance report for {{.Lecture}} on {{.Date.Format "2006-01-02"}}

Session {{.Code}}: {{.StartedAt.Format "15:04"}} - {{.EndedAt.Format "15:04"}}
Students: {{.Summary.Total}}
Present:  {{.Summary.Present}}
Absent:   {{.Summary.Absent}} ({{.Swept}} marked at the end of the session)
{{if .Save.Fallback}}
WARNING: the roster could not be saved with its formatting, a plain copy was written to {{.Save.Path}}.
{{end}}{{if .Attendees}}
Attendees:
{{range .Attendees}}- {{.Name}} ({{.StudentID}}) at {{.At.Format "15:04:05"}}, {{.Device}}{{if .Device.IP}}, {{.Device.IP}}{{end}}
{{end}}{{end}}`))

// mailReport sends the report to the operator, if one is configured.
func (s *Session) mailReport(rep Report) {
	if s.mailer == nil {
		return
	}
	to, ok := s.conf.OperatorAddress()
	if !ok {
		return
	}
	s.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Attendance report: " + rep.Lecture,
		Category:     "attendance-report",
		Template:     reportTmpl,
		TemplateData: rep,
	})
}
