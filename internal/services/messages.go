package services

import (
	"errors"
	"sort"
	"strings"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	"tillsync/internal/upstream"
)

func msg(typ, text string) domain.Message { return domain.Message{Type: typ, Text: text} }

// Describe turns an upstream failure into the message shown to the cashier.
// Field errors from a 422 are returned alongside.
func Describe(p *i18n.Printer, err error) (domain.Message, map[string][]string) {
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		return msg(domain.MessageError, p.Sprintf(i18n.Unexpected)), nil
	}
	switch ue.Kind {
	case upstream.KindTimeout:
		return msg(domain.MessageWarning, p.Sprintf(i18n.Timeout)), nil
	case upstream.KindAuthExpired:
		return msg(domain.MessageError, p.Sprintf(i18n.AuthExpired)), nil
	case upstream.KindForbidden:
		return msg(domain.MessageError, p.Sprintf(i18n.Forbidden)), nil
	case upstream.KindValidation:
		return msg(domain.MessageError, p.Sprintf(i18n.ValidationFailed, firstFieldError(ue))), ue.Fields
	case upstream.KindServer:
		return msg(domain.MessageError, p.Sprintf(i18n.ServerError)), nil
	case upstream.KindNetwork:
		return msg(domain.MessageError, p.Sprintf(i18n.NetworkDown)), nil
	case upstream.KindRejected:
		if ue.Message != "" {
			return msg(domain.MessageError, ue.Message), ue.Fields
		}
	}
	return msg(domain.MessageError, p.Sprintf(i18n.Unexpected)), nil
}

func firstFieldError(ue *upstream.Error) string {
	keys := make([]string, 0, len(ue.Fields))
	for k := range ue.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(ue.Fields[k]) > 0 {
			return ue.Fields[k][0]
		}
	}
	return strings.TrimSpace(ue.Message)
}
