package sms

import (
	"encoding/xml"
	"fmt"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// TwiML renders the webhook acknowledgment Twilio expects. An empty
// body yields an empty <Response/>, which acknowledges without replying.
func TwiML(body string) string {
	payload := twimlResponse{Message: TrimBody(body)}
	data, _ := xml.Marshal(payload)
	return fmt.Sprintf("%s%s", xml.Header, data)
}
