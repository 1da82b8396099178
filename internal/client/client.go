// Package client implements the debug client of spec §6.4 "client"
// mode: dial a server, send a Reset Query, and print every decoded PDU
// in detail — the same role original rtr-origin.py's pprint-based
// debug client plays, expressed as structured zerolog logging instead
// of print statements (SPEC_FULL.md §4.5).
package client

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/bgpfix/rtrd/internal/pdu"
)

// Run sends a Reset Query over conn and logs every PDU received until
// End of Data, Cache Reset, Error Report, or a clean disconnect.
func Run(conn io.ReadWriter, log zerolog.Logger) error {
	if _, err := conn.Write((&pdu.ResetQuery{}).Encode()); err != nil {
		return fmt.Errorf("client: send reset query: %w", err)
	}
	log.Info().Msg("client: sent Reset Query")

	for {
		p, err := pdu.Decode(conn)
		if err == io.EOF {
			log.Info().Msg("client: server closed the stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("client: decode: %w", err)
		}

		logPDU(log, p)

		switch v := p.(type) {
		case *pdu.EndOfData:
			log.Info().Uint32("serial", v.Serial).Msg("client: end of data, done")
			return nil
		case *pdu.CacheReset:
			log.Info().Msg("client: cache reset, nothing to show")
			return nil
		case *pdu.ErrorReport:
			return fmt.Errorf("client: server reported error %d: %s", v.ErrNo, v.Message)
		}
	}
}

// logPDU renders one decoded PDU at field-level detail, the structured
// equivalent of the original's pprint(vars(pdu)).
func logPDU(log zerolog.Logger, p pdu.PDU) {
	switch v := p.(type) {
	case *pdu.CacheResponse:
		log.Debug().Msg("recv Cache Response")
	case *pdu.CacheReset:
		log.Debug().Msg("recv Cache Reset")
	case *pdu.SerialNotify:
		log.Debug().Uint32("serial", v.Serial).Msg("recv Serial Notify")
	case *pdu.EndOfData:
		log.Debug().Uint32("serial", v.Serial).Msg("recv End of Data")
	case *pdu.IPv4Prefix:
		log.Info().
			Bool("announce", v.Announce()).
			Uint8("length", v.Length).
			Uint8("max_length", v.MaxLen).
			Str("prefix", fmt.Sprintf("%d.%d.%d.%d/%d", byte(v.Prefix>>24), byte(v.Prefix>>16), byte(v.Prefix>>8), byte(v.Prefix), v.Length)).
			Uint32("asn", v.ASN).
			Msg("recv IPv4 Prefix")
	case *pdu.IPv6Prefix:
		log.Info().
			Bool("announce", v.Announce()).
			Uint8("length", v.Length).
			Uint8("max_length", v.MaxLen).
			Hex("prefix", v.Prefix[:]).
			Uint32("asn", v.ASN).
			Msg("recv IPv6 Prefix")
	case *pdu.ErrorReport:
		log.Warn().Uint16("errno", v.ErrNo).Str("message", v.Message).Msg("recv Error Report")
	default:
		log.Warn().Uint8("type", p.Type()).Msg("recv unrecognized PDU")
	}
}
