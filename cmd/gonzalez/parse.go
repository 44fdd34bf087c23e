package main

import (
	"fmt"
	"os"

	"github.com/cpkb-bluezoo/gonzalez-sub008/content"
	"github.com/spf13/cobra"
)

var (
	flagNamespaces       bool
	flagNamespacePrefix  bool
	flagExternalGeneral  bool
	flagExternalParam    bool
	flagXML11            bool
	flagMaxEntityDepth   int
)

// parseCmd tokenizes a document and prints one line per SAX event.
var parseCmd = &cobra.Command{
	Use:   "parse [xml_file]",
	Short: "Parse an XML file and print its SAX event trace",
	Long: `Parse reads an XML document (a file, or stdin when no argument is
given) through the streaming tokenizer and content parser, printing one
line per SAX event as it fires.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		in := os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				log.WithError(err).Fatal("opening input")
			}
			defer f.Close()
			in = f
		}

		opts := content.DefaultOptions()
		opts.Namespaces = flagNamespaces
		opts.NamespacePrefixes = flagNamespacePrefix
		opts.ExternalGeneralEntities = flagExternalGeneral
		opts.ExternalParameterEntities = flagExternalParam
		opts.XML11 = flagXML11
		opts.Limits.MaxExpansionDepth = flagMaxEntityDepth
		opts.Logger = log

		p := content.New(&traceHandler{}, opts)
		if err := p.Parse(in); err != nil {
			log.WithError(err).Fatal("parse failed")
		}
	},
}

// traceHandler prints each content event in a compact single-line form.
type traceHandler struct {
	content.BaseHandler
	depth int
}

func (h *traceHandler) indent() string {
	pad := make([]byte, h.depth*2)
	for i := range pad {
		pad[i] = ' '
	}
	return string(pad)
}

func (h *traceHandler) StartDocument() error {
	fmt.Println("startDocument")
	return nil
}

func (h *traceHandler) EndDocument() error {
	fmt.Println("endDocument")
	return nil
}

func (h *traceHandler) StartElement(name content.QName, attrs []content.Attribute) error {
	fmt.Printf("%sstartElement %s", h.indent(), formatQName(name))
	for _, a := range attrs {
		fmt.Printf(" %s=%q", formatQName(a.Name), a.Value)
	}
	fmt.Println()
	h.depth++
	return nil
}

func (h *traceHandler) EndElement(name content.QName) error {
	h.depth--
	fmt.Printf("%sendElement %s\n", h.indent(), formatQName(name))
	return nil
}

func (h *traceHandler) Characters(text []byte) error {
	fmt.Printf("%scharacters %q\n", h.indent(), text)
	return nil
}

func (h *traceHandler) Comment(text []byte) error {
	fmt.Printf("%scomment %q\n", h.indent(), text)
	return nil
}

func (h *traceHandler) ProcessingInstruction(target, data string) error {
	fmt.Printf("%spi %s %q\n", h.indent(), target, data)
	return nil
}

func (h *traceHandler) StartPrefixMapping(prefix, uri string) error {
	fmt.Printf("%sstartPrefixMapping %q -> %s\n", h.indent(), prefix, uri)
	return nil
}

func (h *traceHandler) EndPrefixMapping(prefix string) error {
	fmt.Printf("%sendPrefixMapping %q\n", h.indent(), prefix)
	return nil
}

func (h *traceHandler) SkippedEntity(name string) error {
	fmt.Printf("%sskippedEntity %s\n", h.indent(), name)
	return nil
}

func (h *traceHandler) StartCDATA() error {
	fmt.Printf("%sstartCDATA\n", h.indent())
	return nil
}

func (h *traceHandler) EndCDATA() error {
	fmt.Printf("%sendCDATA\n", h.indent())
	return nil
}

func (h *traceHandler) StartDTD(name, publicID, systemID string) error {
	fmt.Printf("%sstartDTD %s public=%q system=%q\n", h.indent(), name, publicID, systemID)
	return nil
}

func (h *traceHandler) EndDTD() error {
	fmt.Printf("%sendDTD\n", h.indent())
	return nil
}

func formatQName(q content.QName) string {
	if q.URI != "" {
		return fmt.Sprintf("{%s}%s", q.URI, q.Local)
	}
	return q.String()
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVar(&flagNamespaces, "namespaces", true, "resolve and report namespaces")
	parseCmd.Flags().BoolVar(&flagNamespacePrefix, "namespace-prefixes", false, "also report xmlns* attributes")
	parseCmd.Flags().BoolVar(&flagExternalGeneral, "external-general-entities", false, "allow resolving external general entities")
	parseCmd.Flags().BoolVar(&flagExternalParam, "external-parameter-entities", false, "allow resolving external parameter entities")
	parseCmd.Flags().BoolVar(&flagXML11, "xml-1.1", false, "accept XML 1.1 character classes")
	parseCmd.Flags().IntVar(&flagMaxEntityDepth, "max-entity-depth", 20, "maximum entity expansion depth")
}
