package olm_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-olm/olm"
)

// A well-formed archive opens successfully and reports the expected
// message count.
func TestOpen_WellFormedArchive(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 1, h.MessageCount())
}

// Removing Categories.xml (and thus one of the three required magic
// entries) makes Open fail with ErrNotOLMFile.
func TestOpen_MissingCategoriesXML(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("Accounts/")
	require.NoError(t, err)
	_, err = w.Create("Local/")
	require.NoError(t, err)
	addSampleMessage(t, w)
	require.NoError(t, w.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "nomagic.olm")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	_, err = olm.Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrNotOLMFile))
}

func TestOpen_NotAZipFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-zip.olm")
	require.NoError(t, os.WriteFile(path, []byte("hello, this is not a zip archive"), 0644))

	_, err := olm.Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrNotOLMFile))
}

// Two emailAddress entries under OPFMessageCopyToAddresses join into a
// comma-separated To field.
func TestGetMessageAt_FieldsAndAddresses(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	msg, err := h.GetMessageAt(0)
	require.NoError(t, err)

	assert.Equal(t, "a@x,b@y", msg.To)
	assert.Equal(t, "reply@z", msg.ReplyTo)
	assert.Equal(t, "sender@w", msg.From)
	assert.Equal(t, "Hello there", msg.Subject)
	assert.Equal(t, "Body text", msg.Body)
	assert.Equal(t, "msg-123", msg.MessageID)
	assert.True(t, msg.HasHTML)
	assert.False(t, msg.HasRichText)
	assert.Equal(t, 5, msg.Priority)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "report.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "pdf", msg.Attachments[0].Extension)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.EqualValues(t, 7, msg.Attachments[0].FileSize)
}

// OPFMessageCopySentTime is parsed as local wall-clock time.
func TestGetMessageAt_SentTime(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	msg, err := h.GetMessageAt(0)
	require.NoError(t, err)

	want := time.Date(2015, time.June, 7, 8, 9, 10, 0, time.Local)
	assert.True(t, msg.Sent.Equal(want), "got %v want %v", msg.Sent, want)
}

func TestGetMessageAt_InvalidIndex(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.GetMessageAt(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrInvalidParameter))
	assert.Equal(t, olm.CodeInvalidParameter, olm.Code(err))
}

// A stored payload whose bytes don't match the central directory's CRC-32
// fails materialization with ErrMessageCorrupted.
func TestGetMessageAt_CRCMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("Accounts/")
	require.NoError(t, err)
	_, err = w.Create("Local/")
	require.NoError(t, err)
	addStored(t, w, "Categories.xml", []byte(`<categories/>`))
	addStored(t, w, "Local/com.microsoft.__Messages/0/__message_attachment__1.xml", []byte(sampleMessageXML))
	require.NoError(t, w.Close())

	raw := buf.Bytes()
	// Flip one byte inside the stored message payload so the CRC recorded
	// in the central directory no longer matches, without touching any
	// framing bytes that would make the archive itself malformed.
	idx := findPayloadByte(raw, []byte("Body text"))
	require.GreaterOrEqual(t, idx, 0)
	raw[idx] ^= 0xFF

	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.olm")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.GetMessageAt(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrMessageCorrupted))
}

// Extracting an attachment to a writable destination succeeds and
// produces byte-identical content, with a valid CRC-32.
func TestExtractAndSaveAttachment(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	msg, err := h.GetMessageAt(0)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)

	dest := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, h.ExtractAndSaveAttachment(msg.Attachments[0], dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, sampleAttachmentBody, string(got))
}

func TestExtractAndSaveAttachment_NotFound(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.GetMessageAt(0)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "nope.bin")
	err = h.ExtractAndSaveAttachment(olm.AttachmentRef{}, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrAttachmentNotFound))
}

func TestWithMessageCache_ReturnsSameValue(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path, olm.WithMessageCache(4))
	require.NoError(t, err)
	defer h.Close()

	first, err := h.GetMessageAt(0)
	require.NoError(t, err)
	second, err := h.GetMessageAt(0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestContactCount_NoContactsRouted(t *testing.T) {
	path := buildTestOLM(t, addSampleMessage)

	h, err := olm.Open(path)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 0, h.ContactCount())
	_, err = h.GetContactAt(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, olm.ErrInvalidParameter))
}
func findPayloadByte(raw []byte, marker []byte) int {
	for i := 0; i+len(marker) <= len(raw); i++ {
		if string(raw[i:i+len(marker)]) == string(marker) {
			return i
		}
	}
	return -1
}
