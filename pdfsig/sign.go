package pdfsig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/docsig/signature-service/cryptoutils"
	"github.com/docsig/signature-service/interfaces"
)

const (
	// signatureCapacity is the space reserved inside the /Contents
	// placeholder for the DER-encoded CMS structure. An RSA-2048
	// SignedData with a single certificate needs roughly half of this.
	signatureCapacity = 4096

	// byteRangePlaceholder is overwritten in place once the final layout
	// of the revision is known. The patched value is right-padded with
	// spaces to exactly this width.
	byteRangePlaceholder = "[0000000000 0000000000 0000000000 0000000000]"
)

// SignOptions carries optional signature dictionary metadata.
type SignOptions struct {
	Reason   string
	Location string
}

// Sign opens the credential container with the given password and appends
// a new signature revision to pdfData. The input document is not modified;
// the returned slice is the complete signed document. The second return
// value is the signer name taken from the container's certificate.
func Sign(pdfData, container []byte, password string, opts SignOptions) ([]byte, string, error) {
	cred, err := cryptoutils.OpenContainer(container, password)
	if err != nil {
		return nil, "", err
	}

	info, err := parseDocument(pdfData)
	if err != nil {
		return nil, "", err
	}

	signed, err := appendSignature(pdfData, info, cred, opts)
	if err != nil {
		return nil, "", err
	}
	return signed, cred.SignerName(), nil
}

// docInfo is the subset of document structure the signer needs: the
// catalog object to supersede, its entries to carry over, existing
// signature field references, and the xref chain tail.
type docInfo struct {
	rootID       uint32
	rootGen      uint16
	pagesRef     string
	extraEntries []string
	fieldRefs    []string
	size         int64
	prevXref     int64
}

// parseDocument reads the cross-reference chain of the latest revision.
// The underlying parser panics on some malformed inputs, so this is the
// single place where parse failures of any shape are converted into an
// invalid-document error.
func parseDocument(data []byte) (info *docInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = interfaces.Errorf(interfaces.KindInvalidDocument, "input is not a parsable PDF: %v", r)
		}
	}()

	rdr, rerr := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if rerr != nil {
		return nil, interfaces.Wrap(interfaces.KindInvalidDocument, "input is not a parsable PDF", rerr)
	}

	trailer := rdr.Trailer()
	root := trailer.Key("Root")
	if root.Kind() != pdflib.Dict {
		return nil, interfaces.E(interfaces.KindInvalidDocument, "document has no catalog")
	}
	rootPtr := root.GetPtr()
	if rootPtr.GetID() == 0 {
		return nil, interfaces.E(interfaces.KindInvalidDocument, "document catalog is not an indirect object")
	}

	info = &docInfo{
		rootID:  rootPtr.GetID(),
		rootGen: rootPtr.GetGen(),
		size:    trailer.Key("Size").Int64(),
	}
	if info.size < 2 {
		return nil, interfaces.E(interfaces.KindInvalidDocument, "document trailer has no usable /Size")
	}

	pages := root.Key("Pages")
	if pages.Kind() != pdflib.Dict {
		return nil, interfaces.E(interfaces.KindInvalidDocument, "document has no page tree")
	}
	pagesPtr := pages.GetPtr()
	info.pagesRef = fmt.Sprintf("%d %d R", pagesPtr.GetID(), pagesPtr.GetGen())

	if form := root.Key("AcroForm"); form.Kind() == pdflib.Dict {
		fields := form.Key("Fields")
		for i := 0; i < fields.Len(); i++ {
			ptr := fields.Index(i).GetPtr()
			if ptr.GetID() == 0 {
				continue
			}
			info.fieldRefs = append(info.fieldRefs, fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen()))
		}
	}

	// The superseding catalog rewrites Type, Pages and AcroForm itself;
	// everything else in the old catalog (Metadata, Outlines, Names, ...)
	// is carried over so signing does not degrade the document.
	for _, key := range root.Keys() {
		switch key {
		case "Type", "Pages", "AcroForm":
			continue
		}
		formatted, ok := formatValue(root.Key(key))
		if !ok {
			continue
		}
		info.extraEntries = append(info.extraEntries, fmt.Sprintf("/%s %s", key, formatted))
	}

	info.prevXref, err = lastXrefOffset(data)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// lastXrefOffset returns the startxref value of the latest revision.
func lastXrefOffset(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, interfaces.E(interfaces.KindInvalidDocument, "document has no startxref marker")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, interfaces.E(interfaces.KindInvalidDocument, "document startxref is not numeric")
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, interfaces.Wrap(interfaces.KindInvalidDocument, "document startxref is not numeric", err)
	}
	return off, nil
}

// appendSignature writes the incremental revision: signature dictionary,
// signature field widget, superseded catalog, xref section and trailer.
// The /ByteRange and /Contents values are patched in place afterwards so
// that every offset is final before the digest is computed.
func appendSignature(pdfData []byte, info *docInfo, cred *cryptoutils.Credential, opts SignOptions) ([]byte, error) {
	sigID := info.size
	fieldID := info.size + 1
	fieldName := fmt.Sprintf("Signature%d", len(info.fieldRefs)+1)

	var out bytes.Buffer
	out.Grow(len(pdfData) + signatureCapacity*2 + 1024)
	out.Write(pdfData)
	if len(pdfData) == 0 || pdfData[len(pdfData)-1] != '\n' {
		out.WriteByte('\n')
	}

	sigOffset := out.Len()
	fmt.Fprintf(&out, "%d 0 obj\n<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached", sigID)
	fmt.Fprintf(&out, " /Name (%s)", escapePDFString(cred.SignerName()))
	if opts.Reason != "" {
		fmt.Fprintf(&out, " /Reason (%s)", escapePDFString(opts.Reason))
	}
	if opts.Location != "" {
		fmt.Fprintf(&out, " /Location (%s)", escapePDFString(opts.Location))
	}
	fmt.Fprintf(&out, " /M (%s)", formatPDFDate(time.Now()))
	out.WriteString(" /ByteRange ")
	byteRangePos := out.Len()
	out.WriteString(byteRangePlaceholder)
	out.WriteString(" /Contents <")
	contentsPos := out.Len()
	out.WriteString(strings.Repeat("0", signatureCapacity*2))
	out.WriteString("> >>\nendobj\n")

	fieldOffset := out.Len()
	fmt.Fprintf(&out, "%d 0 obj\n<< /Type /Annot /Subtype /Widget /FT /Sig /T (%s) /V %d 0 R /F 132 /Rect [0 0 0 0] >>\nendobj\n",
		fieldID, escapePDFString(fieldName), sigID)

	refs := make([]string, 0, len(info.fieldRefs)+1)
	refs = append(refs, info.fieldRefs...)
	refs = append(refs, fmt.Sprintf("%d 0 R", fieldID))

	catalogOffset := out.Len()
	fmt.Fprintf(&out, "%d %d obj\n<< /Type /Catalog /Pages %s", info.rootID, info.rootGen, info.pagesRef)
	for _, entry := range info.extraEntries {
		out.WriteString(" " + entry)
	}
	fmt.Fprintf(&out, " /AcroForm << /Fields [%s] /SigFlags 3 >> >>\nendobj\n", strings.Join(refs, " "))

	xrefOffset := out.Len()
	out.WriteString("xref\n")
	fmt.Fprintf(&out, "%d 1\n", info.rootID)
	fmt.Fprintf(&out, "%010d %05d n \n", catalogOffset, info.rootGen)
	fmt.Fprintf(&out, "%d 2\n", sigID)
	fmt.Fprintf(&out, "%010d %05d n \n", sigOffset, 0)
	fmt.Fprintf(&out, "%010d %05d n \n", fieldOffset, 0)
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d %d R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n",
		info.size+2, info.rootID, info.rootGen, info.prevXref, xrefOffset)

	doc := out.Bytes()

	// The placeholder spans [gapStart, gapEnd) including the angle
	// brackets. Everything outside of it is covered by the signature.
	gapStart := contentsPos - 1
	gapEnd := contentsPos + signatureCapacity*2 + 1
	byteRange := fmt.Sprintf("[%d %d %d %d]", 0, gapStart, gapEnd, len(doc)-gapEnd)
	if len(byteRange) > len(byteRangePlaceholder) {
		return nil, interfaces.Errorf(interfaces.KindInternal, "byte range %q exceeds reserved width", byteRange)
	}
	copy(doc[byteRangePos:], byteRange+strings.Repeat(" ", len(byteRangePlaceholder)-len(byteRange)))

	covered := make([]byte, 0, len(doc)-(gapEnd-gapStart))
	covered = append(covered, doc[:gapStart]...)
	covered = append(covered, doc[gapEnd:]...)

	der, err := buildCMS(covered, cred)
	if err != nil {
		return nil, err
	}
	if len(der) > signatureCapacity {
		return nil, interfaces.Errorf(interfaces.KindInternal, "signature of %d bytes exceeds reserved capacity", len(der))
	}
	copy(doc[contentsPos:], hex.EncodeToString(der))

	return doc, nil
}

// buildCMS produces a detached SignedData over the covered document bytes,
// embedding the signer's certificate.
func buildCMS(covered []byte, cred *cryptoutils.Credential) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(covered)
	if err != nil {
		return nil, interfaces.Wrap(interfaces.KindInternal, "initializing signature structure", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(cred.Certificate, cred.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, interfaces.Wrap(interfaces.KindInternal, "signing document digest", err)
	}
	sd.Detach()
	der, err := sd.Finish()
	if err != nil {
		return nil, interfaces.Wrap(interfaces.KindInternal, "encoding signature structure", err)
	}
	return der, nil
}

// formatValue renders a parsed catalog value back into PDF syntax.
// Indirect objects become references; direct scalars, arrays and dicts are
// written inline. Values with no serializable form report false and are
// skipped by the caller.
func formatValue(v pdflib.Value) (string, bool) {
	if ptr := v.GetPtr(); ptr.GetID() != 0 {
		return fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen()), true
	}
	switch v.Kind() {
	case pdflib.Null:
		return "null", true
	case pdflib.Bool:
		if v.Bool() {
			return "true", true
		}
		return "false", true
	case pdflib.Integer:
		return strconv.FormatInt(v.Int64(), 10), true
	case pdflib.Real:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64), true
	case pdflib.String:
		return "(" + escapePDFString(v.RawString()) + ")", true
	case pdflib.Name:
		return "/" + v.Name(), true
	case pdflib.Array:
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			s, ok := formatValue(v.Index(i))
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, " ") + "]", true
	case pdflib.Dict:
		var b strings.Builder
		b.WriteString("<<")
		for _, key := range v.Keys() {
			s, ok := formatValue(v.Key(key))
			if !ok {
				return "", false
			}
			b.WriteString(" /" + key + " " + s)
		}
		b.WriteString(" >>")
		return b.String(), true
	default:
		return "", false
	}
}

// escapePDFString escapes a value for use inside a PDF literal string.
// Control bytes are written as octal escapes so line breaks in a subject
// name or reason cannot break the dictionary syntax.
func escapePDFString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '(' || c == ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// formatPDFDate renders t as a PDF date string in UTC, e.g. D:20240131235959Z.
func formatPDFDate(t time.Time) string {
	return "D:" + t.UTC().Format("20060102150405") + "Z"
}
