package pdfsig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/docsig/signature-service/interfaces"
)

// SignatureRecord is the verification outcome for one embedded signature.
// Records are reported in the order their dictionaries appear in the file,
// which for incremental updates is signing order.
type SignatureRecord struct {
	Signer       string    `json:"signer"`
	Organization string    `json:"organization,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Location     string    `json:"location,omitempty"`
	SigningTime  time.Time `json:"signing_time,omitempty"`
	Valid        bool      `json:"valid"`
	Detail       string    `json:"detail"`
}

// VerificationReport aggregates the outcome over all signatures in a document.
type VerificationReport struct {
	HasSignatures bool              `json:"has_signatures"`
	AllValid      bool              `json:"all_valid"`
	Message       string            `json:"message"`
	Signatures    []SignatureRecord `json:"signatures"`
}

// recordState tracks how far an individual record got through checking.
type recordState uint8

const (
	stateUnchecked recordState = iota
	stateDigestComputed
	stateValid
	stateInvalid
	stateCertificateError
)

var (
	byteRangeRE = regexp.MustCompile(`/ByteRange\s*\[\s*(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s*\]`)
	sigDictRE   = regexp.MustCompile(`/Type\s*/Sig\b`)
)

// Verify checks every signature embedded in pdfData. A document that parses
// but carries no signatures yields a report with HasSignatures false; a
// document that does not parse at all is an invalid-document error.
// Cryptographic failures are reported per record, never as an error.
func Verify(pdfData []byte) (*VerificationReport, error) {
	if err := checkParsable(pdfData); err != nil {
		return nil, err
	}

	report := &VerificationReport{Signatures: []SignatureRecord{}}

	for _, m := range byteRangeRE.FindAllSubmatchIndex(pdfData, -1) {
		// A byte range only counts when its object really is a signature
		// dictionary; the literal text can occur in ordinary content.
		window := dictWindow(pdfData, m[0])
		if !sigDictRE.Match(window) {
			continue
		}

		ranges := make([]int64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseInt(string(pdfData[m[2+2*i]:m[3+2*i]]), 10, 64)
			if err != nil {
				v = -1
			}
			ranges[i] = v
		}
		rec := verifyRecord(pdfData, ranges)
		fillMetadata(&rec, window)
		report.Signatures = append(report.Signatures, rec)
	}

	report.HasSignatures = len(report.Signatures) > 0
	if !report.HasSignatures {
		report.Message = "no signatures found in document"
		return report, nil
	}

	invalid := 0
	for _, rec := range report.Signatures {
		if !rec.Valid {
			invalid++
		}
	}
	report.AllValid = invalid == 0
	if report.AllValid {
		report.Message = fmt.Sprintf("all %d signatures are valid", len(report.Signatures))
	} else {
		report.Message = fmt.Sprintf("%d of %d signatures are invalid", invalid, len(report.Signatures))
	}
	return report, nil
}

// checkParsable rejects inputs the PDF parser cannot read.
func checkParsable(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = interfaces.Errorf(interfaces.KindInvalidDocument, "input is not a parsable PDF: %v", r)
		}
	}()
	if _, rerr := pdflib.NewReader(bytes.NewReader(data), int64(len(data))); rerr != nil {
		return interfaces.Wrap(interfaces.KindInvalidDocument, "input is not a parsable PDF", rerr)
	}
	return nil
}

// verifyRecord recomputes the digest over the record's byte ranges and
// checks the CMS signature against its embedded certificate. The
// certificate itself is checked for self-consistency only.
func verifyRecord(doc []byte, ranges []int64) SignatureRecord {
	rec := SignatureRecord{}
	state := stateUnchecked

	size := int64(len(doc))
	a, b, c, d := ranges[0], ranges[1], ranges[2], ranges[3]
	if a < 0 || b < 0 || c < 0 || d < 0 || a+b > size || c+d > size || c < a+b {
		rec.Detail = "malformed signature byte range"
		return rec
	}

	der, err := decodeContents(doc[a+b : c])
	if err != nil {
		rec.Detail = err.Error()
		return rec
	}

	covered := make([]byte, 0, b+d)
	covered = append(covered, doc[a:a+b]...)
	covered = append(covered, doc[c:c+d]...)
	state = stateDigestComputed

	p7, err := pkcs7.Parse(der)
	if err != nil {
		rec.Detail = "cannot parse embedded signature structure"
		return rec
	}
	cert := p7.GetOnlySigner()
	if cert == nil {
		rec.Detail = "signature does not carry exactly one signer certificate"
		return rec
	}
	rec.Signer = cert.Subject.CommonName
	if len(cert.Subject.Organization) > 0 {
		rec.Organization = cert.Subject.Organization[0]
	}

	p7.Content = covered
	if err := p7.Verify(); err != nil {
		state = stateInvalid
		rec.Detail = "document digest does not match signature"
	} else if certErr := cert.CheckSignatureFrom(cert); certErr != nil {
		state = stateCertificateError
		rec.Detail = fmt.Sprintf("signature matches but certificate is not self-consistent: %v", certErr)
	} else {
		state = stateValid
		rec.Detail = "signature is valid"
	}

	rec.Valid = state == stateValid
	return rec
}

// decodeContents extracts the DER signature from the hex placeholder that
// sits between the two covered ranges. Unused placeholder capacity is
// zero-padded; the signature's own encoded length decides where it ends,
// since the DER itself may legitimately end in zero bytes.
func decodeContents(gap []byte) ([]byte, error) {
	gap = bytes.TrimSpace(gap)
	if len(gap) < 2 || gap[0] != '<' || gap[len(gap)-1] != '>' {
		return nil, fmt.Errorf("signature contents are not a hex string")
	}
	body := make([]byte, 0, len(gap)-2)
	for _, ch := range gap[1 : len(gap)-1] {
		switch {
		case ch == ' ' || ch == '\r' || ch == '\n' || ch == '\t':
		default:
			body = append(body, ch)
		}
	}
	der, err := hex.DecodeString(string(body))
	if err != nil {
		return nil, fmt.Errorf("signature contents are not valid hex")
	}
	total := derLength(der)
	if total <= 0 || total > len(der) {
		return nil, fmt.Errorf("signature contents are not a DER structure")
	}
	return der[:total], nil
}

// derLength returns the full encoded length of the ASN.1 SEQUENCE at the
// start of b, including its tag and length header, or 0 if there is none.
func derLength(b []byte) int {
	if len(b) < 2 || b[0] != 0x30 {
		return 0
	}
	if b[1] < 0x80 {
		return 2 + int(b[1])
	}
	numBytes := int(b[1] & 0x7f)
	if numBytes == 0 || numBytes > 4 || len(b) < 2+numBytes {
		return 0
	}
	length := 0
	for i := 0; i < numBytes; i++ {
		length = length<<8 | int(b[2+i])
	}
	return 2 + numBytes + length
}

var (
	reasonRE   = regexp.MustCompile(`/Reason\s*\(((?:\\.|[^\\()])*)\)`)
	locationRE = regexp.MustCompile(`/Location\s*\(((?:\\.|[^\\()])*)\)`)
	dateRE     = regexp.MustCompile(`/M\s*\(D:(\d{14})`)
)

// fillMetadata pulls /Reason, /Location and /M out of the signature
// dictionary surrounding the byte range entry. The signer identity always
// comes from the certificate, so /Name is deliberately ignored here.
func fillMetadata(rec *SignatureRecord, window []byte) {
	if m := reasonRE.FindSubmatch(window); m != nil {
		rec.Reason = unescapePDFString(string(m[1]))
	}
	if m := locationRE.FindSubmatch(window); m != nil {
		rec.Location = unescapePDFString(string(m[1]))
	}
	if m := dateRE.FindSubmatch(window); m != nil {
		if t, err := time.ParseInLocation("20060102150405", string(m[1]), time.UTC); err == nil {
			rec.SigningTime = t
		}
	}
}

// dictWindow bounds the object containing the byte range entry: back to
// the nearest "obj" keyword and forward to the nearest "endobj".
func dictWindow(doc []byte, matchStart int) []byte {
	start := 0
	if idx := bytes.LastIndex(doc[:matchStart], []byte(" obj")); idx >= 0 {
		start = idx
	}
	end := len(doc)
	if idx := bytes.Index(doc[matchStart:], []byte("endobj")); idx >= 0 {
		end = matchStart + idx
	}
	return doc[start:end]
}

// unescapePDFString reverses the escaping applied to PDF literal strings,
// including the standard letter escapes and octal byte escapes.
func unescapePDFString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		i++
		c = s[i]
		switch c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(c - '0')
			for j := 0; j < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; j++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			out = append(out, byte(v))
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
