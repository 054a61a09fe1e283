// Package i18n holds the cashier-facing message catalog.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. Values are the English text and double as catalog keys.
const (
	CartEmpty        = "The cart is empty."
	OfflineAccepted  = "You are offline. The sale was saved and will be sent when the connection returns."
	CheckoutSuccess  = "Sale %s completed."
	Timeout          = "The server took too long to answer. Please try again."
	AuthExpired      = "Your session has expired. Please sign in again."
	Forbidden        = "You do not have permission to complete this sale."
	ValidationFailed = "Please review the sale: %s"
	ServerError      = "The server had a problem. Please try again in a moment."
	NetworkDown      = "The server cannot be reached. Check the connection and try again."
	Unexpected       = "Something went wrong. Please try again."
	QuantityClamped  = "Quantity limited to %d."
	SyncNothing      = "There are no pending sales."
	SyncComplete     = "%d pending sales sent."
	SyncPartial      = "%d sales sent, %d could not be sent yet."
	SyncBusy         = "A synchronization is already running."
	OfflineAPI       = "You are offline. This data is not available offline."
)

var builder = catalog.NewBuilder(catalog.Fallback(language.English))

func init() {
	es := language.Spanish
	set := func(key, text string) { _ = builder.SetString(es, key, text) }
	set(CartEmpty, "El carrito está vacío.")
	set(OfflineAccepted, "Sin conexión. La venta se guardó y se enviará cuando vuelva la conexión.")
	set(CheckoutSuccess, "Venta %s completada.")
	set(Timeout, "El servidor tardó demasiado en responder. Inténtelo de nuevo.")
	set(AuthExpired, "Su sesión ha expirado. Inicie sesión de nuevo.")
	set(Forbidden, "No tiene permiso para completar esta venta.")
	set(ValidationFailed, "Revise la venta: %s")
	set(ServerError, "El servidor tuvo un problema. Inténtelo de nuevo en un momento.")
	set(NetworkDown, "No se puede contactar con el servidor. Revise la conexión e inténtelo de nuevo.")
	set(Unexpected, "Algo salió mal. Inténtelo de nuevo.")
	set(QuantityClamped, "Cantidad limitada a %d.")
	set(SyncNothing, "No hay ventas pendientes.")
	set(SyncComplete, "%d ventas pendientes enviadas.")
	set(SyncPartial, "%d ventas enviadas, %d aún no se pudieron enviar.")
	set(SyncBusy, "Ya hay una sincronización en curso.")
	set(OfflineAPI, "Sin conexión. Estos datos no están disponibles sin conexión.")
}

// Printer formats catalog messages for one locale.
type Printer struct{ p *message.Printer }

// New returns a printer for locale, falling back to English for unknown tags.
func New(locale string) *Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	m := language.NewMatcher([]language.Tag{language.English, language.Spanish})
	_, idx, _ := m.Match(tag)
	tags := []language.Tag{language.English, language.Spanish}
	return &Printer{p: message.NewPrinter(tags[idx], message.Catalog(builder))}
}

func (p *Printer) Sprintf(key string, args ...any) string {
	return p.p.Sprintf(key, args...)
}
