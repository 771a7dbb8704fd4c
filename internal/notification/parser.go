package notification

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/entity"
)

// countPath is the element path, below the document root, of the declared entry count.
var countPath = []string{"IngOvrstpsrvcRpt", "Rpt", "TxsSummry", "TtlNtries", "NbOfNtries"}

const entryElement = "Ntry"

// Document is a parsed and validated notification file.
type Document struct {
	Path          string
	DeclaredCount int
	Entries       []entity.Entry
}

// CountMismatchError rejects a document whose declared count differs from its entries.
type CountMismatchError struct {
	Declared int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%s: declared %d entries, found %d", common.CodeValidation, e.Declared, e.Actual)
}

func (e *CountMismatchError) Is(target error) bool {
	return target == common.ErrValidation
}

// Parser reads notification documents in a single XML namespace.
type Parser struct {
	namespace string
}

func NewParser(namespace string) *Parser {
	return &Parser{namespace: namespace}
}

// Parse opens path and decodes it. Any error means the document is rejected as a whole.
func (p *Parser) Parse(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewTransferError("open document", err)
	}
	defer f.Close()

	doc, err := p.Decode(f)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Decode reads one document from r. Entries keep document order.
func (p *Parser) Decode(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)

	var (
		stack    []string
		declared = -1
		entries  []entity.Entry
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, common.NewValidationError("malformed document", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != p.namespace {
				stack = append(stack, "")
				continue
			}
			switch {
			case t.Name.Local == entryElement:
				var n node
				if err := dec.DecodeElement(&n, &t); err != nil {
					return nil, common.NewValidationError("malformed entry", err)
				}
				e, err := p.entryFrom(n)
				if err != nil {
					return nil, common.NewValidationError(fmt.Sprintf("entry %d", len(entries)+1), err)
				}
				entries = append(entries, e)
			case t.Name.Local == countPath[len(countPath)-1] && p.atCountPath(stack):
				if declared >= 0 {
					return nil, common.NewValidationError("declared entry count appears more than once", nil)
				}
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, common.NewValidationError("malformed entry count", err)
				}
				n, err := strconv.Atoi(strings.TrimSpace(text))
				if err != nil {
					return nil, common.NewValidationError(fmt.Sprintf("entry count %q is not a number", text), err)
				}
				if n < 0 {
					return nil, common.NewValidationError(fmt.Sprintf("entry count %d is negative", n), nil)
				}
				declared = n
			default:
				stack = append(stack, t.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if declared < 0 {
		return nil, common.NewValidationError("declared entry count not found", nil)
	}
	if len(entries) != declared {
		return nil, &CountMismatchError{Declared: declared, Actual: len(entries)}
	}
	return &Document{DeclaredCount: declared, Entries: entries}, nil
}

// atCountPath reports whether stack is the root followed by the count's parents.
func (p *Parser) atCountPath(stack []string) bool {
	parents := countPath[:len(countPath)-1]
	if len(stack) != len(parents)+1 {
		return false
	}
	for i, name := range parents {
		if stack[i+1] != name {
			return false
		}
	}
	return true
}

// entryFrom maps an entry subtree. Accounts are positional: the first IBAN and
// BIC belong to the old account, the second ones to the new account.
func (p *Parser) entryFrom(n node) (entity.Entry, error) {
	var (
		mandates, e2e []string
		ibans, bics   []string
	)
	n.walk(p.namespace, func(c node) {
		switch c.XMLName.Local {
		case "MndtId":
			mandates = append(mandates, clean(c.Text))
		case "EndToEndId":
			e2e = append(e2e, clean(c.Text))
		case "IBAN":
			ibans = append(ibans, clean(c.Text))
		case "BIC":
			bics = append(bics, clean(c.Text))
		}
	})

	if len(mandates) == 0 || mandates[0] == "" {
		return entity.Entry{}, errors.New("missing MndtId")
	}
	if len(ibans) != 2 {
		return entity.Entry{}, fmt.Errorf("expected old and new IBAN, found %d IBAN elements", len(ibans))
	}
	if ibans[0] == "" || ibans[1] == "" {
		return entity.Entry{}, errors.New("empty IBAN")
	}
	if len(bics) != 0 && len(bics) != 2 {
		return entity.Entry{}, fmt.Errorf("expected zero or two BIC elements, found %d", len(bics))
	}

	e := entity.Entry{
		MandateID: mandates[0],
		OldIBAN:   ibans[0],
		NewIBAN:   ibans[1],
	}
	if len(e2e) > 0 {
		e.EndToEndID = e2e[0]
	}
	if len(bics) == 2 {
		e.OldBIC = bics[0]
		e.NewBIC = bics[1]
	}
	return e, nil
}

type node struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
	Nodes   []node `xml:",any"`
}

// walk visits descendants in document order, skipping foreign namespaces.
func (n node) walk(namespace string, fn func(node)) {
	for _, c := range n.Nodes {
		if c.XMLName.Space != namespace {
			continue
		}
		fn(c)
		c.walk(namespace, fn)
	}
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
