package olm

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"time"
)

// Message defaults, kept exactly as downstream consumers that recognize
// these placeholder strings expect them.
const (
	placeholderAddress   = "NO_ADDRESS"
	placeholderSubject   = "NO_SUBJECT"
	placeholderMessageID = "NO_MESSAGE_ID"
	placeholderBody      = "NO_BODY"

	priorityDefault = 3
	priorityMin     = 1
	priorityMax     = 5
)

// Message is a materialized mail record, produced by (*Handle).GetMessageAt.
// It owns all of its own strings and attachment references; it carries no
// back-reference into the *Handle that produced it.
type Message struct {
	To, From, ReplyTo string
	Subject           string
	MessageID         string
	Body              string

	Sent, Received, Modified time.Time

	HasHTML     bool
	HasRichText bool
	Priority    int

	Attachments []AttachmentRef
}

// AttachmentRef refers back to one attachment entry inside the archive it
// was materialized from. privateKey is the opaque central-directory path
// used by (*Handle).ExtractAndSaveAttachment to find the backing entry.
type AttachmentRef struct {
	privateKey string

	Filename    string
	Extension   string
	ContentType string
	FileSize    int64
}

// xml element and attribute names from the OLM message schema.
const (
	elEmailAddress    = "emailAddress"
	elToAddresses     = "OPFMessageCopyToAddresses"
	elReplyToAddrs    = "OPFMessageCopyReplyToAddresses"
	elSenderAddress   = "OPFMessageCopySenderAddress"
	elSubject         = "OPFMessageCopySubject"
	elBody            = "OPFMessageCopyBody"
	elSentTime        = "OPFMessageCopySentTime"
	elReceivedTime    = "OPFMessageCopyReceivedTime"
	elModDate         = "OPFMessageCopyModDate"
	elMessageID       = "OPFMessageCopyMessageID"
	elHasHTML         = "OPFMessageGetHasHTML"
	elHasRichText     = "OPFMessageGetHasRichText"
	elPriority        = "OPFMessageGetPriority"
	elAttachmentList  = "OPFMessageCopyAttachmentList"
	elMessageAttach   = "messageAttachment"
	attrEmailAddress  = "OPFContactEmailAddressAddress"
	attrAttachExt     = "OPFAttachmentContentExtension"
	attrAttachType    = "OPFAttachmentContentType"
	attrAttachName    = "OPFAttachmentName"
	attrAttachSize    = "OPFAttachmentContentFileSize"
	attrAttachURL     = "OPFAttachmentURL"
)

// materializeMessage re-reads the local header, validates the CRC-32 of the
// stored payload, parses the XML, and fills a Message with defaults for
// any field left unset.
func materializeMessage(r *byteReader, e rawEntry, lenient bool) (*Message, error) {
	if err := requireStored(e.compressionMethod, ErrMessageCorrupted); err != nil {
		return nil, err
	}
	if err := seekToPayload(r, e); err != nil {
		return nil, err
	}
	buf, err := r.readN(int(e.uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("olm: %w: %v", ErrMessageCorrupted, err)
	}
	if crc32.ChecksumIEEE(buf) != e.crc32 {
		return nil, fmt.Errorf("olm: %w: CRC-32 mismatch for %q", ErrMessageCorrupted, e.rawPath)
	}

	msg, err := decodeMessageXML(buf, lenient)
	if err != nil {
		return nil, fmt.Errorf("olm: %w: %v", ErrMessageCorrupted, err)
	}
	applyMessageDefaults(msg)
	return msg, nil
}

// decodeMessageXML walks data's XML tree depth-first, tracking the enclosing
// element by name. In lenient mode, a decode error does not abort the
// parse: the reader resynchronizes at the next '<' byte after the failure
// and continues, discarding only the malformed fragment (see DESIGN.md).
func decodeMessageXML(data []byte, lenient bool) (*Message, error) {
	msg := &Message{}
	var toAddrs, replyAddrs []string

	offset := 0
outer:
	for offset < len(data) {
		dec := xml.NewDecoder(bytes.NewReader(data[offset:]))
		dec.Strict = !lenient

		var stack []string
		var cur *string // destination for the text of the currently open simple element
		var curName string

		for {
			tok, err := dec.Token()
			if err != nil {
				if err == io.EOF {
					break outer
				}
				if !lenient {
					return nil, err
				}
				resumeAt := offset + int(dec.InputOffset())
				nextLT := bytes.IndexByte(data[min(resumeAt+1, len(data)):], '<')
				if nextLT < 0 {
					break outer
				}
				offset = resumeAt + 1 + nextLT
				continue outer
			}

			switch t := tok.(type) {
			case xml.StartElement:
				name := t.Name.Local
				parent := ""
				if len(stack) > 0 {
					parent = stack[len(stack)-1]
				}

				switch name {
				case elEmailAddress:
					addr := firstAttr(t.Attr, attrEmailAddress)
					if addr != "" {
						switch parent {
						case elToAddresses:
							toAddrs = append(toAddrs, addr)
						case elReplyToAddrs:
							replyAddrs = append(replyAddrs, addr)
						case elSenderAddress:
							if msg.From == "" {
								msg.From = addr
							}
						}
					}
				case elMessageAttach:
					ref := AttachmentRef{
						Extension:   firstAttr(t.Attr, attrAttachExt),
						ContentType: firstAttr(t.Attr, attrAttachType),
						Filename:    firstAttr(t.Attr, attrAttachName),
						privateKey:  firstAttr(t.Attr, attrAttachURL),
					}
					if sz := firstAttr(t.Attr, attrAttachSize); sz != "" {
						if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
							ref.FileSize = n
						}
					}
					msg.Attachments = append(msg.Attachments, ref)
				case elSubject, elBody, elSentTime, elReceivedTime, elModDate,
					elMessageID, elHasHTML, elHasRichText, elPriority:
					var dst string
					cur = &dst
					curName = name
				}
				stack = append(stack, name)
			case xml.CharData:
				if cur != nil {
					*cur += string(t)
				}
			case xml.EndElement:
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				if cur != nil && t.Name.Local == curName {
					applySimpleField(msg, curName, *cur)
					cur = nil
					curName = ""
				}
			}
		}
	}

	if len(toAddrs) > 0 {
		msg.To = joinAddresses(toAddrs)
	}
	if len(replyAddrs) > 0 {
		msg.ReplyTo = joinAddresses(replyAddrs)
	}
	return msg, nil
}

func joinAddresses(addrs []string) string {
	out := addrs[0]
	for _, a := range addrs[1:] {
		out += "," + a
	}
	return out
}

func firstAttr(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// applySimpleField routes the captured text of a single-valued element to
// the matching Message field.
func applySimpleField(msg *Message, name, text string) {
	switch name {
	case elSubject:
		msg.Subject = text
	case elBody:
		msg.Body = text
	case elMessageID:
		msg.MessageID = text
	case elSentTime:
		if t, ok := parseMessageTimestamp(text); ok {
			msg.Sent = t
		}
	case elReceivedTime:
		if t, ok := parseMessageTimestamp(text); ok {
			msg.Received = t
		}
	case elModDate:
		if t, ok := parseMessageTimestamp(text); ok {
			msg.Modified = t
		}
	case elHasHTML:
		msg.HasHTML = text != "0" && text != ""
	case elHasRichText:
		msg.HasRichText = text != "0" && text != ""
	case elPriority:
		msg.Priority = parsePriority(text)
	}
}

// parsePriority takes the first byte of text, subtracts the ASCII digit
// offset, and coerces anything outside 1..5 to the normal priority.
func parsePriority(text string) int {
	if text == "" {
		return priorityDefault
	}
	p := int(text[0]) - '0'
	if p < priorityMin || p > priorityMax {
		return priorityDefault
	}
	return p
}

// applyMessageDefaults fills any field still at its zero value with the
// documented placeholder. Priority is coerced to normal if the XML never
// carried an OPFMessageGetPriority element at all.
func applyMessageDefaults(msg *Message) {
	if msg.To == "" {
		msg.To = placeholderAddress
	}
	if msg.From == "" {
		msg.From = placeholderAddress
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = placeholderAddress
	}
	if msg.Subject == "" {
		msg.Subject = placeholderSubject
	}
	if msg.MessageID == "" {
		msg.MessageID = placeholderMessageID
	}
	if msg.Body == "" {
		msg.Body = placeholderBody
	}
	if msg.Priority == 0 {
		msg.Priority = priorityDefault
	}
}

// parseMessageTimestamp parses the YYYY?MM?DD?HH?MM?SS shape the OLM
// schema uses, where '?' is any single non-digit separator. The result is
// interpreted as local-time wall-clock, with DST auto-detected.
func parseMessageTimestamp(s string) (time.Time, bool) {
	pos := 0
	year, ok := readDigits(s, &pos, 4)
	if !ok || !skipSeparator(s, &pos) {
		return time.Time{}, false
	}
	month, ok := readDigits(s, &pos, 2)
	if !ok || !skipSeparator(s, &pos) {
		return time.Time{}, false
	}
	day, ok := readDigits(s, &pos, 2)
	if !ok || !skipSeparator(s, &pos) {
		return time.Time{}, false
	}
	hour, ok := readDigits(s, &pos, 2)
	if !ok || !skipSeparator(s, &pos) {
		return time.Time{}, false
	}
	minute, ok := readDigits(s, &pos, 2)
	if !ok || !skipSeparator(s, &pos) {
		return time.Time{}, false
	}
	second, ok := readDigits(s, &pos, 2)
	if !ok {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local), true
}

func readDigits(s string, pos *int, n int) (int, bool) {
	if *pos+n > len(s) {
		return 0, false
	}
	v := 0
	for i := 0; i < n; i++ {
		c := s[*pos+i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	*pos += n
	return v, true
}

func skipSeparator(s string, pos *int) bool {
	if *pos >= len(s) {
		return false
	}
	c := s[*pos]
	if c >= '0' && c <= '9' {
		return false
	}
	*pos++
	return true
}

