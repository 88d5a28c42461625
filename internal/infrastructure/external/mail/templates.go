package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/admissions-hub/admissions-hub/pkg/timeutil"
)

// OfferData feeds the offer notification.
type OfferData struct {
	StudentName  string
	ProgramLabel string
	Institution  string
	City         string
	Score        int
	Position     int
	DecidedAt    time.Time
}

// WithdrawalData feeds the auto-withdrawal notification.
type WithdrawalData struct {
	StudentName      string
	WithdrawnProgram string
	KeptProgram      string
	DecidedAt        time.Time
}

var offerHTML = template.Must(template.New("offer").Parse(`<p>Bonjour {{.StudentName}},</p>
<p>Vous avez reçu une proposition d'admission pour <strong>{{.ProgramLabel}}</strong>{{if .Institution}} ({{.Institution}}{{if .City}}, {{.City}}{{end}}){{end}}.</p>
<p>Score : {{.Score}}{{if .Position}}, rang {{.Position}}{{end}}. Décision du {{.Decided}}.</p>
<p>Connectez-vous à votre espace pour consulter vos voeux.</p>`))

var withdrawalHTML = template.Must(template.New("withdrawal").Parse(`<p>Bonjour {{.StudentName}},</p>
<p>Votre proposition pour <strong>{{.WithdrawnProgram}}</strong> a été retirée automatiquement car vous avez reçu une proposition sur un voeu mieux classé : <strong>{{.KeptProgram}}</strong>.</p>
<p>Décision du {{.Decided}}.</p>`))

// RenderOffer builds the offer e-mail for to.
func RenderOffer(to string, d OfferData) (Message, error) {
	html, err := render(offerHTML, struct {
		OfferData
		Decided string
	}{d, timeutil.FormatFrench(d.DecidedAt)})
	if err != nil {
		return Message{}, err
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Bonjour %s,\n\n", d.StudentName)
	fmt.Fprintf(&text, "Vous avez reçu une proposition d'admission pour %s.\n", d.ProgramLabel)
	fmt.Fprintf(&text, "Score : %d. Décision du %s.\n", d.Score, timeutil.FormatFrench(d.DecidedAt))

	return Message{
		To:       to,
		Subject:  "Proposition d'admission : " + d.ProgramLabel,
		HTMLBody: html,
		TextBody: text.String(),
	}, nil
}

// RenderWithdrawal builds the auto-withdrawal e-mail for to.
func RenderWithdrawal(to string, d WithdrawalData) (Message, error) {
	html, err := render(withdrawalHTML, struct {
		WithdrawalData
		Decided string
	}{d, timeutil.FormatFrench(d.DecidedAt)})
	if err != nil {
		return Message{}, err
	}

	text := fmt.Sprintf("Bonjour %s,\n\nVotre proposition pour %s a été retirée au profit de %s.\n",
		d.StudentName, d.WithdrawnProgram, d.KeptProgram)

	return Message{
		To:       to,
		Subject:  "Proposition retirée : " + d.WithdrawnProgram,
		HTMLBody: html,
		TextBody: text,
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
