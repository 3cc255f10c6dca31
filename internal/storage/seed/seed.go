// Package seed installs a small demo dataset for development servers and
// tests. The fixtures cover every object class plus a forwarding stub and
// an IDN domain, so a freshly started server exercises the whole resolution
// surface.
package seed

import (
	"context"
	"fmt"

	"rdapd/internal/rdap"
	"rdapd/internal/storage"
)

// Demo stages the demo dataset in one transaction.
func Demo(ctx context.Context, backend storage.Backend) error {
	tx, err := backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.AddHelp(ctx, demoHelp()); err != nil {
		return fmt.Errorf("seed help: %w", err)
	}
	for _, e := range demoEntities() {
		if err := tx.AddEntity(ctx, e); err != nil {
			return fmt.Errorf("seed entity %s: %w", e.Handle, err)
		}
	}
	for _, ns := range demoNameservers() {
		if err := tx.AddNameserver(ctx, ns); err != nil {
			return fmt.Errorf("seed nameserver %s: %w", ns.Handle, err)
		}
	}
	for _, d := range demoDomains() {
		if err := tx.AddDomain(ctx, d); err != nil {
			return fmt.Errorf("seed domain %s: %w", d.Handle, err)
		}
	}
	if err := tx.AddAutnum(ctx, demoAutnum()); err != nil {
		return fmt.Errorf("seed autnum: %w", err)
	}
	for _, n := range demoNetworks() {
		if err := tx.AddNetwork(ctx, n); err != nil {
			return fmt.Errorf("seed network %s: %w", n.Handle, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}

func demoHelp() *rdap.Help {
	return &rdap.Help{
		Common: rdap.Common{
			Notices: []rdap.Notice{{
				Title: "Demo RDAP Service",
				Description: []string{
					"This server is loaded with demonstration data.",
					"Lookups outside the demo set are answered from IANA delegation data.",
				},
			}},
		},
	}
}

func demoEntities() []*rdap.Entity {
	registrar := &rdap.Entity{
		Common: rdap.Common{
			Handle: "REG-1",
			Status: []string{"active"},
			Events: []rdap.Event{
				{Action: "registration", Date: "2019-05-14T09:00:00Z"},
			},
		},
		Roles: []string{"registrar"},
		VCardArray: rdap.VCard{
			{Name: "fn", Type: "text", Values: []any{"Example Registrar LLC"}},
			{Name: "org", Type: "text", Values: []any{"Example Registrar LLC"}},
			{Name: "email", Type: "text", Values: []any{"hostmaster@registrar.example"}},
			{Name: "tel", Type: "uri", Values: []any{"tel:+31-20-555-0100"}},
		},
		PublicIDs: []rdap.PublicID{{Type: "IANA Registrar ID", Identifier: "9999"}},
	}

	contact := &rdap.Entity{
		Common: rdap.Common{
			Handle: "OPS-7",
			Status: []string{"active"},
		},
		Roles: []string{"technical"},
		VCardArray: rdap.VCard{
			{Name: "fn", Type: "text", Values: []any{"Operations Desk"}},
			{Name: "email", Type: "text", Values: []any{"ops@registry.example"}},
		},
	}

	// Forwarding stub: queries for any handle tagged -DEMO redirect to the
	// external registry that owns the tag.
	stub := &rdap.Entity{
		Common: rdap.Common{
			Handle: "-DEMO",
			Remarks: []rdap.Remark{{
				Title:       "Forwarding stub",
				Description: []string{"Handles tagged DEMO are registered with the demo RIR."},
			}},
		},
		ForwardURLs: []string{"https://rdap.demo-rir.example/rdap"},
	}

	return []*rdap.Entity{registrar, contact, stub}
}

func demoNameservers() []*rdap.Nameserver {
	return []*rdap.Nameserver{
		{
			Common: rdap.Common{
				Handle: "NS1-EXAMPLE",
				Status: []string{"active"},
			},
			LDHName:     "ns1.example.com",
			IPAddresses: &rdap.IPAddresses{V4: []string{"192.0.2.10"}},
		},
		{
			Common: rdap.Common{
				Handle: "NS2-EXAMPLE",
				Status: []string{"active"},
			},
			LDHName:     "ns2.example.com",
			IPAddresses: &rdap.IPAddresses{V4: []string{"192.0.2.11"}, V6: []string{"2001:db8::11"}},
		},
	}
}

func demoDomains() []*rdap.Domain {
	registrarRef := rdap.Entity{
		Common: rdap.Common{Handle: "REG-1"},
		Roles:  []string{"registrar"},
		VCardArray: rdap.VCard{
			{Name: "fn", Type: "text", Values: []any{"Example Registrar LLC"}},
		},
	}

	return []*rdap.Domain{
		{
			Common: rdap.Common{
				Handle: "EXAMPLE-COM",
				Status: []string{"active"},
				Events: []rdap.Event{
					{Action: "registration", Date: "1995-08-14T04:00:00Z"},
					{Action: "last changed", Date: "2024-03-01T12:00:00Z"},
				},
				Entities: []rdap.Entity{registrarRef},
			},
			LDHName: "example.com",
			Nameservers: []rdap.Nameserver{
				{LDHName: "ns1.example.com"},
				{LDHName: "ns2.example.com"},
			},
		},
		{
			// unicodeName is left empty; normalization derives it from the
			// punycode form.
			Common: rdap.Common{
				Handle: "BUECHER-EXAMPLE",
				Status: []string{"active"},
				Events: []rdap.Event{
					{Action: "registration", Date: "2021-11-02T08:30:00Z"},
				},
				Entities: []rdap.Entity{registrarRef},
			},
			LDHName: "xn--bcher-kva.example",
		},
	}
}

func demoAutnum() *rdap.Autnum {
	return &rdap.Autnum{
		Common: rdap.Common{
			Handle: "AS64500-BLOCK",
			Status: []string{"active"},
		},
		StartAutnum: 64500,
		EndAutnum:   64510,
		Name:        "EXAMPLE-NET",
		Country:     "NL",
	}
}

func demoNetworks() []*rdap.Network {
	return []*rdap.Network{
		{
			// No cidr0 blocks stored; normalization derives the minimal
			// cover from the range.
			Common: rdap.Common{
				Handle: "NET-192-0-2-0-24",
				Status: []string{"active"},
			},
			StartAddress: "192.0.2.0",
			EndAddress:   "192.0.2.255",
			IPVersion:    "v4",
			Name:         "EXAMPLE-DOC",
			Type:         "DIRECT ALLOCATION",
			Country:      "NL",
		},
		{
			Common: rdap.Common{
				Handle: "NET6-2001-DB8",
				Status: []string{"active"},
			},
			StartAddress: "2001:db8::",
			EndAddress:   "2001:db8:ffff:ffff:ffff:ffff:ffff:ffff",
			IPVersion:    "v6",
			Name:         "EXAMPLE-DOC-V6",
			Type:         "ALLOCATED-BY-RIR",
			Country:      "NL",
		},
	}
}
