package olm_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestOLM assembles a minimal, valid OLM-shaped archive in memory
// using the standard library's archive/zip writer and writes it to a temp
// file. Every message/attachment entry is written with zip.Store so the
// library's "no compressed payloads" assumption holds.
func buildTestOLM(t *testing.T, extra func(t *testing.T, w *zip.Writer)) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	_, err := w.Create("Accounts/")
	require.NoError(t, err)
	_, err = w.Create("Local/")
	require.NoError(t, err)

	addStored(t, w, "Categories.xml", []byte(`<categories/>`))

	if extra != nil {
		extra(t, w)
	}

	require.NoError(t, w.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "archive.olm")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func addStored(t *testing.T, w *zip.Writer, name string, data []byte) {
	t.Helper()
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	fw, err := w.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
}

const sampleMessageXML = `<?xml version="1.0"?>
<messages>
 <message>
  <OPFMessageCopySubject>Hello there</OPFMessageCopySubject>
  <OPFMessageCopyToAddresses>
   <emailAddress OPFContactEmailAddressAddress="a@x"/>
   <emailAddress OPFContactEmailAddressAddress="b@y"/>
  </OPFMessageCopyToAddresses>
  <OPFMessageCopyReplyToAddresses>
   <emailAddress OPFContactEmailAddressAddress="reply@z"/>
  </OPFMessageCopyReplyToAddresses>
  <OPFMessageCopySenderAddress>
   <emailAddress OPFContactEmailAddressAddress="sender@w"/>
  </OPFMessageCopySenderAddress>
  <OPFMessageCopySentTime>2015-06-07T08:09:10</OPFMessageCopySentTime>
  <OPFMessageCopyReceivedTime>2015-06-07T08:10:00</OPFMessageCopyReceivedTime>
  <OPFMessageCopyModDate>2015-06-07T08:11:00</OPFMessageCopyModDate>
  <OPFMessageCopyMessageID>msg-123</OPFMessageCopyMessageID>
  <OPFMessageCopyBody>Body text</OPFMessageCopyBody>
  <OPFMessageGetHasHTML>1</OPFMessageGetHasHTML>
  <OPFMessageGetHasRichText>0</OPFMessageGetHasRichText>
  <OPFMessageGetPriority>5</OPFMessageGetPriority>
  <OPFMessageCopyAttachmentList>
   <messageAttachment OPFAttachmentName="report.pdf" OPFAttachmentContentExtension="pdf" OPFAttachmentContentType="application/pdf" OPFAttachmentContentFileSize="7" OPFAttachmentURL="Local/com.microsoft.__Messages/0/com.microsoft.__Attachments/1/report.pdf_0"/>
  </OPFMessageCopyAttachmentList>
 </message>
</messages>`

const sampleAttachmentBody = "PDFDATA"

func addSampleMessage(t *testing.T, w *zip.Writer) {
	t.Helper()
	addStored(t, w, "Local/com.microsoft.__Messages/0/__message_attachment__1.xml", []byte(sampleMessageXML))
	addStored(t, w, "Local/com.microsoft.__Messages/0/com.microsoft.__Attachments/1/report.pdf_0", []byte(sampleAttachmentBody))
}
