package email

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"zozbit-notify/internal/types"
)

const (
	logoPath     = "static/zozbit.png"
	logoFilename = "zozbit.png"

	base64LineLength = 76
)

// OutboundEmail is a fully assembled RFC 5322 message. It lives only for the
// duration of one delivery.
type OutboundEmail struct {
	From      string
	To        string
	Subject   string
	MessageID string
	Raw       []byte
}

// Assembler builds multipart/related messages:
//
//	multipart/related
//	├── multipart/alternative
//	│   ├── text/plain
//	│   └── text/html
//	└── image/png (inline logo, optional)
type Assembler struct {
	logo  []byte
	clock types.Clock
}

// NewAssembler reads the logo from assets once. A missing logo is logged and
// messages are built without it.
func NewAssembler(assets fs.FS, clock types.Clock, logger *slog.Logger) *Assembler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assembler{clock: clock}
	if assets != nil {
		logo, err := fs.ReadFile(assets, logoPath)
		switch {
		case err == nil:
			a.logo = logo
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("logo asset not found, emails will not embed it", slog.String("path", logoPath))
		default:
			logger.Warn("logo asset unreadable", slog.String("path", logoPath), slog.String("error", err.Error()))
		}
	}
	return a
}

// HasLogo reports whether messages carry the inline logo.
func (a *Assembler) HasLogo() bool {
	return len(a.logo) > 0
}

// Assemble encodes msg for a single sender and recipient.
func (a *Assembler) Assemble(msg RenderedMessage, from, to string) (*OutboundEmail, error) {
	messageID := newMessageID(from)

	var body bytes.Buffer
	related := multipart.NewWriter(&body)

	alternative, err := alternativePart(msg)
	if err != nil {
		return nil, err
	}
	altBody, err := related.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": alternative.boundary})},
	})
	if err != nil {
		return nil, fmt.Errorf("creating alternative part: %w", err)
	}
	if _, err := altBody.Write(alternative.body); err != nil {
		return nil, fmt.Errorf("writing alternative part: %w", err)
	}

	if a.HasLogo() {
		if err := writeLogoPart(related, a.logo); err != nil {
			return nil, err
		}
	}
	if err := related.Close(); err != nil {
		return nil, fmt.Errorf("closing related part: %w", err)
	}

	var raw bytes.Buffer
	writeHeader(&raw, "From", from)
	writeHeader(&raw, "To", to)
	writeHeader(&raw, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&raw, "Date", a.clock.Now().Format(time.RFC1123Z))
	writeHeader(&raw, "Message-ID", messageID)
	writeHeader(&raw, "MIME-Version", "1.0")
	writeHeader(&raw, "Content-Type", mime.FormatMediaType("multipart/related", map[string]string{
		"boundary": related.Boundary(),
		"type":     "multipart/alternative",
	}))
	raw.WriteString("\r\n")
	raw.Write(body.Bytes())

	return &OutboundEmail{
		From:      from,
		To:        to,
		Subject:   msg.Subject,
		MessageID: messageID,
		Raw:       raw.Bytes(),
	}, nil
}

type encodedPart struct {
	boundary string
	body     []byte
}

// alternativePart encodes the text and HTML bodies. Plain text comes first so
// that clients prefer HTML.
func alternativePart(msg RenderedMessage) (encodedPart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeQuotedPrintable(w, "text/plain; charset=utf-8", msg.TextBody); err != nil {
		return encodedPart{}, err
	}
	if err := writeQuotedPrintable(w, "text/html; charset=utf-8", msg.HTMLBody); err != nil {
		return encodedPart{}, err
	}
	if err := w.Close(); err != nil {
		return encodedPart{}, fmt.Errorf("closing alternative part: %w", err)
	}
	return encodedPart{boundary: w.Boundary(), body: buf.Bytes()}, nil
}

func writeQuotedPrintable(w *multipart.Writer, contentType, content string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("encoding %s part: %w", contentType, err)
	}
	return qp.Close()
}

func writeLogoPart(w *multipart.Writer, logo []byte) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"image/png"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Id":                {"<" + LogoContentID + ">"},
		"Content-Disposition":       {mime.FormatMediaType("inline", map[string]string{"filename": logoFilename})},
	})
	if err != nil {
		return fmt.Errorf("creating logo part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(logo)
	for len(encoded) > base64LineLength {
		if _, err := part.Write([]byte(encoded[:base64LineLength] + "\r\n")); err != nil {
			return fmt.Errorf("writing logo part: %w", err)
		}
		encoded = encoded[base64LineLength:]
	}
	if _, err := part.Write([]byte(encoded + "\r\n")); err != nil {
		return fmt.Errorf("writing logo part: %w", err)
	}
	return nil
}

// maxHeaderLine is the recommended RFC 5322 line length, excluding CRLF.
const maxHeaderLine = 78

// writeHeader writes key: value, folding at spaces so lines stay within
// maxHeaderLine where the value allows it. Folding only inserts CRLF before
// an existing space, so unfolding restores value exactly. Encoded-words from
// mime.QEncoding are space separated and never longer than 75 bytes.
func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(":")
	lineLen := len(key) + 1

	for _, word := range strings.Split(value, " ") {
		if word != "" && lineLen+1+len(word) > maxHeaderLine && lineLen > 0 {
			buf.WriteString("\r\n")
			lineLen = 0
		}
		buf.WriteString(" ")
		buf.WriteString(word)
		lineLen += 1 + len(word)
	}
	buf.WriteString("\r\n")
}

// newMessageID returns <uuid@domain>, using the sender's domain when it has one.
func newMessageID(from string) string {
	domain := "zozbit.localhost"
	if _, d, ok := strings.Cut(from, "@"); ok && d != "" {
		domain = d
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
