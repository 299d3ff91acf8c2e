package handshake

import (
	"net"

	proxyproto "github.com/pires/go-proxyproto"
)

// proxyProtoHeader builds a PROXY v2 header announcing a documentation
// source address and the dialed peer as destination.
func proxyProtoHeader(dst net.Addr) *proxyproto.Header {
	srcIP := net.ParseIP(proxyProtoDefaultSrcIPv4)
	transportProtocol := proxyproto.TCPv4

	dstAddr, ok := dst.(*net.TCPAddr)
	if !ok {
		dstAddr = &net.TCPAddr{IP: net.IPv4zero}
	}

	if dstAddr.IP.To4() == nil {
		transportProtocol = proxyproto.TCPv6
		srcIP = net.ParseIP(proxyProtoDefaultSrcIPv6)
	}

	return &proxyproto.Header{
		Version:           2,
		Command:           proxyproto.PROXY,
		TransportProtocol: transportProtocol,
		SourceAddr:        &net.TCPAddr{IP: srcIP, Port: proxyProtoDefaultSrcPort},
		DestinationAddr:   dstAddr,
	}
}
