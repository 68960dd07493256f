// Package protocol implements the wire codec of the Site-to-Site flow file
// protocol. It knows how frames look on the byte stream but nothing about
// the order in which they are exchanged; that is the job of the client and
// peer packages.
//
// Wire Format:
//
//   - Preamble: the client writes the 4 magic bytes "NiFi".
//
//   - Resource negotiation: the client proposes SocketFlowFileProtocol and a
//     version (2 byte length prefixed name, 4 byte version). The peer answers
//     with a status byte: ResourceOK, DifferentResourceVersion followed by the
//     preferred version, or NegotiatedAbort followed by a message.
//
//   - Handshake: comms identifier, transit URI prefix (version >= 3) and a
//     property map (PORT_IDENTIFIER, GZIP, REQUEST_EXPIRATION_MILLIS, batch
//     hints). The peer answers with a response frame.
//
//   - Response frames: 'R' 'C' <code> [message]. Only some codes carry a
//     message (see ResponseCode.HasMessage).
//
//   - Records: 4 byte attribute count, each key and value 4 byte length
//     prefixed, then an 8 byte payload length and the payload bytes.
//
// All integers are big endian. Checksums are CRC32 (IEEE) over the record
// bytes of one transaction, exchanged as decimal strings.
package protocol
