package panos

import (
	"encoding/xml"
	"fmt"
)

// Element is an XML element kept verbatim so rule fields this package does
// not model survive a fetch-edit round trip.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// NATRule is one entry of a NAT rulebase.
type NATRule struct {
	XMLName           xml.Name           `xml:"entry"`
	Name              string             `xml:"name,attr"`
	Destination       []string           `xml:"destination>member"`
	SourceTranslation *SourceTranslation `xml:"source-translation,omitempty"`
	Extra             []Element          `xml:",any"`
}

// SourceTranslation holds the source NAT of a rule. At most one of the
// modes is set on a valid rule.
type SourceTranslation struct {
	DynamicIPAndPort *DynamicIPAndPort `xml:"dynamic-ip-and-port,omitempty"`
	StaticIP         *StaticIP         `xml:"static-ip,omitempty"`
	Extra            []Element         `xml:",any"`
}

type DynamicIPAndPort struct {
	TranslatedAddress []string  `xml:"translated-address>member"`
	Extra             []Element `xml:",any"`
}

type StaticIP struct {
	TranslatedAddress string    `xml:"translated-address"`
	Extra             []Element `xml:",any"`
}

// TranslatedAddresses returns the dynamic-ip-and-port translated address
// names.
func (r *NATRule) TranslatedAddresses() []string {
	if r.SourceTranslation == nil || r.SourceTranslation.DynamicIPAndPort == nil {
		return nil
	}
	return r.SourceTranslation.DynamicIPAndPort.TranslatedAddress
}

// SetTranslatedAddresses replaces the dynamic-ip-and-port translated
// addresses.
func (r *NATRule) SetTranslatedAddresses(names []string) {
	if r.SourceTranslation == nil {
		r.SourceTranslation = &SourceTranslation{}
	}
	if r.SourceTranslation.DynamicIPAndPort == nil {
		r.SourceTranslation.DynamicIPAndPort = &DynamicIPAndPort{}
	}
	r.SourceTranslation.DynamicIPAndPort.TranslatedAddress = names
}

// StaticTranslatedAddress returns the static-ip translated address, or "".
func (r *NATRule) StaticTranslatedAddress() string {
	if r.SourceTranslation == nil || r.SourceTranslation.StaticIP == nil {
		return ""
	}
	return r.SourceTranslation.StaticIP.TranslatedAddress
}

// SetStaticTranslatedAddress rewrites the static-ip translated address.
func (r *NATRule) SetStaticTranslatedAddress(name string) {
	if r.SourceTranslation == nil {
		r.SourceTranslation = &SourceTranslation{}
	}
	if r.SourceTranslation.StaticIP == nil {
		r.SourceTranslation.StaticIP = &StaticIP{}
	}
	r.SourceTranslation.StaticIP.TranslatedAddress = name
}

// Clone returns a deep copy of the fields remediation mutates.
func (r *NATRule) Clone() *NATRule {
	c := *r
	c.Destination = append([]string(nil), r.Destination...)
	if st := r.SourceTranslation; st != nil {
		cst := *st
		if st.DynamicIPAndPort != nil {
			d := *st.DynamicIPAndPort
			d.TranslatedAddress = append([]string(nil), d.TranslatedAddress...)
			cst.DynamicIPAndPort = &d
		}
		if st.StaticIP != nil {
			s := *st.StaticIP
			cst.StaticIP = &s
		}
		c.SourceTranslation = &cst
	}
	return &c
}

// SecurityRule is one entry of a security rulebase.
type SecurityRule struct {
	XMLName     xml.Name  `xml:"entry"`
	Name        string    `xml:"name,attr"`
	Source      []string  `xml:"source>member"`
	Destination []string  `xml:"destination>member"`
	Extra       []Element `xml:",any"`
}

// Clone returns a copy with its own member lists.
func (r *SecurityRule) Clone() *SecurityRule {
	c := *r
	c.Source = append([]string(nil), r.Source...)
	c.Destination = append([]string(nil), r.Destination...)
	return &c
}

type natRules struct {
	Entries []*NATRule `xml:"rules>entry"`
}

type securityRules struct {
	Entries []*SecurityRule `xml:"rules>entry"`
}

// ParseNATRules decodes the result of a get on a NAT rules xpath.
func ParseNATRules(inner []byte) ([]*NATRule, error) {
	var doc natRules
	if err := xml.Unmarshal(wrapResult(inner), &doc); err != nil {
		return nil, fmt.Errorf("decode NAT rules: %w", err)
	}
	return doc.Entries, nil
}

// ParseSecurityRules decodes the result of a get on a security rules xpath.
func ParseSecurityRules(inner []byte) ([]*SecurityRule, error) {
	var doc securityRules
	if err := xml.Unmarshal(wrapResult(inner), &doc); err != nil {
		return nil, fmt.Errorf("decode security rules: %w", err)
	}
	return doc.Entries, nil
}

// wrapResult restores a single root around result content.
func wrapResult(inner []byte) []byte {
	out := make([]byte, 0, len(inner)+17)
	out = append(out, "<result>"...)
	out = append(out, inner...)
	out = append(out, "</result>"...)
	return out
}
