package campaign

import (
	"strings"

	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/util"
)

// Queue is the immutable, ordered list of recipients of one campaign.
type Queue struct {
	contacts []model.Contact
}

// NewQueue normalizes phones to digits only and silently drops rows left without a phone.
// With dedup set only the first occurrence of a phone is kept.
func NewQueue(raw []model.Contact, dedup bool) Queue {
	contacts := make([]model.Contact, 0, len(raw))
	seen := make(map[string]bool)
	for _, c := range raw {
		phone := util.DigitsOnly(c.Phone)
		if phone == "" {
			continue
		}
		if dedup {
			if seen[phone] {
				continue
			}
			seen[phone] = true
		}
		contacts = append(contacts, model.Contact{Phone: phone, Name: strings.TrimSpace(c.Name)})
	}
	return Queue{contacts: contacts}
}

func (q Queue) Len() int {
	return len(q.contacts)
}

func (q Queue) At(i int) model.Contact {
	return q.contacts[i]
}

// Contacts returns a copy of the queued contacts.
func (q Queue) Contacts() []model.Contact {
	return append([]model.Contact(nil), q.contacts...)
}

// AddressFunc maps a normalized phone to the recipient address of the transport.
type AddressFunc func(phone string) string

// AffixAddress builds the provider addressing scheme prefix + phone + suffix,
// e.g. "91" and "@c.us" for chat accounts. It is injective for digit-only phones.
func AffixAddress(prefix, suffix string) AddressFunc {
	return func(phone string) string {
		return prefix + phone + suffix
	}
}
