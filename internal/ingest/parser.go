package ingest

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/domain"
)

// Row layout shared by import files and maintenance feeds:
// url, typeCode, payload, date. Import files carry a header line on top.
const (
	colURL     = 0
	colType    = 1
	colPayload = 2
	colDate    = 3

	minRowFields = 3
)

// dateLayout is day/month/year as the upstream exporter writes it;
// single-digit days and months parse too.
const dateLayout = "2/1/2006"

// Payload sentinels the exporter emits for pages it could not or did not
// need to fetch. A row carrying only a sentinel contributes nothing.
var payloadSentinels = map[string]struct{}{
	"fetch error":  {},
	"not required": {},
}

// Type codes mapping a row's payload to one record field. Unrecognized
// codes still contribute the row's url/date pair.
const (
	codeTitle       = "[TI]"
	codeStatus      = "[SC]"
	codeFetchError  = "[ER]"
	codePostcode    = "[PC]"
	codeEmail       = "[EM]"
	codeTwitter     = "[TW]"
	codeFacebook    = "[FB]"
	codeLinkedIn    = "[LI]"
	codePinterest   = "[PI]"
	codeYouTube     = "[YT]"
	codeInstagram   = "[IG]"
	codeRedirect    = "[RD]"
	codeMetaDesc    = "[MD]"
	codePhone       = "[PN]"
	codeBlacklisted = "[BL]"
)

// Parser converts raw rows into partial records. It is stateless apart
// from its clock and logger and is safe for reuse across files.
type Parser struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewParser constructs a Parser. A nil logger is replaced with a nop.
func NewParser(logger *zap.Logger, now func() time.Time) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Parser{logger: logger, now: now}
}

// ParseRow turns one row into a partial record fragment. Returned errors
// are KindValidation (row dropped quietly: bad domain, sentinel-only
// payload) or KindParse (malformed row, reported upward). A bad date
// never rejects the row; it falls back to ingestion time.
func (p *Parser) ParseRow(row Row, sourceFile string) (domain.Record, error) {
	if len(row.Fields) < minRowFields {
		return domain.Record{}, parseErrorf(
			"%s line %d: expected at least %d fields, got %d",
			sourceFile, row.Line, minRowFields, len(row.Fields))
	}

	url := domain.NormalizeDomain(row.Fields[colURL])
	if !domain.IsValidDomain(url) {
		p.logger.Debug("dropping row with invalid domain",
			zap.String("file", sourceFile),
			zap.Int("line", row.Line),
			zap.String("raw", row.Fields[colURL]),
		)
		return domain.Record{}, validationErrorf("%s line %d: invalid domain", sourceFile, row.Line)
	}

	rec := domain.Record{URL: url, Date: p.parseDate(row)}

	payload := row.Fields[colPayload]
	if _, sentinel := payloadSentinels[strings.ToLower(payload)]; sentinel {
		// The sentinel itself is not data; keep the row only if some
		// other column still carries a value.
		payload = ""
	}

	p.applyCode(&rec, strings.ToUpper(row.Fields[colType]), payload, sourceFile, row.Line)
	return rec, nil
}

func (p *Parser) applyCode(rec *domain.Record, code, payload, sourceFile string, line int) {
	if payload == "" && code != codeBlacklisted {
		return
	}
	switch code {
	case codeTitle:
		rec.Title = domain.CleanText(payload)
	case codeStatus, codeFetchError:
		rec.StatusCode = domain.CleanText(payload)
	case codePostcode:
		rec.Postcode = domain.CleanText(payload)
	case codeEmail:
		rec.Email = strings.ToLower(domain.CleanText(payload))
	case codeTwitter:
		rec.Twitter = domain.CleanSocialURL(payload)
	case codeFacebook:
		rec.Facebook = domain.CleanSocialURL(payload)
	case codeLinkedIn:
		rec.LinkedIn = domain.CleanSocialURL(payload)
	case codePinterest:
		rec.Pinterest = domain.CleanSocialURL(payload)
	case codeYouTube:
		rec.YouTube = domain.CleanSocialURL(payload)
	case codeInstagram:
		rec.Instagram = domain.CleanSocialURL(payload)
	case codeRedirect:
		rec.RedirectURL = domain.CleanSocialURL(payload)
	case codeMetaDesc:
		rec.MetaDescription = domain.CleanText(payload)
	case codePhone:
		p.applyPhone(rec, payload, sourceFile, line)
	case codeBlacklisted:
		rec.IsBlacklisted = payload == "" || isTruthy(payload)
	default:
		// Unknown code: the row still contributes its url/date pair.
		p.logger.Debug("unrecognized type code",
			zap.String("file", sourceFile),
			zap.Int("line", line),
			zap.String("code", code),
		)
	}
}

func (p *Parser) applyPhone(rec *domain.Record, payload, sourceFile string, line int) {
	// A payload may carry several numbers separated by semicolons.
	for _, raw := range strings.Split(payload, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		formatted, ok := domain.CleanPhoneNumber(raw)
		if !ok {
			p.logger.Info("skipping unparseable phone number",
				zap.String("file", sourceFile),
				zap.Int("line", line),
				zap.String("site", rec.URL),
				zap.String("raw", raw),
			)
			continue
		}
		rec.Phones = domain.MergePhones(rec.Phones, []string{formatted})
	}
}

func (p *Parser) parseDate(row Row) time.Time {
	if len(row.Fields) <= colDate {
		return p.now()
	}
	raw := strings.TrimSpace(row.Fields[colDate])
	if raw == "" {
		return p.now()
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		// A bad date never rejects the row.
		return p.now()
	}
	return t.UTC()
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
