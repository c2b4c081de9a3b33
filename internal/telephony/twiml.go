package telephony

import (
	"encoding/xml"
	"strings"

	"clinicvoice/internal/domain"
)

type responseElement struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type sayElement struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type recordElement struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	MaxLength int      `xml:"maxLength,attr"`
	Timeout   int      `xml:"timeout,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
	Trim      string   `xml:"trim,attr"`
}

type gatherElement struct {
	XMLName       xml.Name    `xml:"Gather"`
	Input         string      `xml:"input,attr"`
	Action        string      `xml:"action,attr"`
	Method        string      `xml:"method,attr"`
	Language      string      `xml:"language,attr,omitempty"`
	SpeechTimeout string      `xml:"speechTimeout,attr,omitempty"`
	Hints         string      `xml:"hints,attr,omitempty"`
	Say           *sayElement `xml:",omitempty"`
}

type dialElement struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

type hangupElement struct {
	XMLName xml.Name `xml:"Hangup"`
}

type redirectElement struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type CaptureMode string

const (
	CaptureRecord CaptureMode = "record"
	CaptureGather CaptureMode = "gather"
)

type ReplyOptions struct {
	TurnURL string
	Capture CaptureMode
	Voice   string
	Hints   []string
}

// RenderReply turns a reply plan into TwiML: speak the text, then capture the
// next turn, dial the operator, or hang up.
func RenderReply(plan domain.SpokenReplyPlan, opts ReplyOptions) (string, error) {
	say := &sayElement{Language: plan.LanguageTag, Voice: opts.Voice, Text: plan.Text}
	var verbs []any

	switch plan.NextAction {
	case domain.ActionEnd:
		if plan.Text != "" {
			verbs = append(verbs, say)
		}
		verbs = append(verbs, hangupElement{})
	case domain.ActionEscalate:
		if plan.Text != "" {
			verbs = append(verbs, say)
		}
		if plan.HandoffNumber != "" {
			verbs = append(verbs, dialElement{Number: plan.HandoffNumber})
		} else {
			verbs = append(verbs, hangupElement{})
		}
	default:
		if opts.Capture == CaptureGather {
			verbs = append(verbs, gatherElement{
				Input:         "speech",
				Action:        opts.TurnURL,
				Method:        "POST",
				Language:      plan.LanguageTag,
				SpeechTimeout: "auto",
				Hints:         strings.Join(opts.Hints, ","),
				Say:           say,
			})
		} else {
			verbs = append(verbs, say, recordElement{
				Action:    opts.TurnURL,
				Method:    "POST",
				MaxLength: 15,
				Timeout:   3,
				PlayBeep:  false,
				Trim:      "trim-silence",
			})
		}
		// Reached only when the caller says nothing.
		verbs = append(verbs, redirectElement{Method: "POST", URL: opts.TurnURL})
	}

	out, err := xml.MarshalIndent(responseElement{Verbs: verbs}, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}
