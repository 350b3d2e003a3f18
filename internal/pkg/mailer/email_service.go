package mailer

import (
	"fmt"
	"strings"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendKySummary(toEmail string, session store.Session) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (s *emailService) SendKySummary(toEmail string, session store.Session) error {
	m := NewKySummaryMessage(s.senderEmail, s.senderName, toEmail, session)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send KY summary for session %s: %w", session.ID, err)
	}
	return nil
}

// NewKySummaryMessage builds the supervisor mail for a completed session.
func NewKySummaryMessage(from, fromName, to string, session store.Session) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from, fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", KySummarySubject(session))
	m.SetBody("text/plain", RenderKySummary(session))
	return m
}

func KySummarySubject(session store.Session) string {
	return fmt.Sprintf("【KY報告】%s %s", session.SiteName, session.WorkerName)
}

var categoryLabels = map[store.CountermeasureCategory]string{
	store.CategoryEquipment: "設備・環境",
	store.CategoryBehavior:  "行動",
	store.CategoryPPE:       "保護具",
}

// RenderKySummary renders the plain-text report body.
func RenderKySummary(session store.Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "現場: %s\n", session.SiteName)
	fmt.Fprintf(&b, "作業者: %s\n", session.WorkerName)
	if session.Weather != "" {
		fmt.Fprintf(&b, "天候: %s", session.Weather)
		if session.Temperature != nil {
			fmt.Fprintf(&b, " (%.1f℃)", *session.Temperature)
		}
		b.WriteString("\n")
	}
	if session.CompletedAt != nil {
		fmt.Fprintf(&b, "完了: %s\n", session.CompletedAt.Format("2006-01-02 15:04"))
	}

	for i, item := range session.WorkItems {
		fmt.Fprintf(&b, "\n■作業%d: %s\n", i+1, item.WorkDescription)
		fmt.Fprintf(&b, "  危険: %s (危険度%d)\n", item.HazardDescription, item.RiskLevel)
		if len(item.WhyDangerous) > 0 {
			fmt.Fprintf(&b, "  要因: %s\n", strings.Join(item.WhyDangerous, " / "))
		}
		for _, cm := range item.Countermeasures {
			fmt.Fprintf(&b, "  対策[%s]: %s\n", categoryLabels[cm.Category], cm.Text)
		}
	}

	fmt.Fprintf(&b, "\n行動目標: %s\n", session.ActionGoal)
	if session.NearMissReported {
		fmt.Fprintf(&b, "ヒヤリハット: %s\n", session.NearMissNote)
	}
	return b.String()
}
