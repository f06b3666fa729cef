package hci

// Opcode group fields.
const (
	ogfLinkCtl     = 0x01
	ogfLinkPolicy  = 0x02
	ogfHostCtl     = 0x03
	ogfInfoParam   = 0x04
	ogfStatusParam = 0x05
	ogfLECtl       = 0x08
	ogfVendor      = 0x3F
)

// Opcode is the 16-bit HCI command opcode: OGF in the upper 6 bits,
// OCF in the lower 10.
type Opcode uint16

func (op Opcode) OGF() uint8  { return uint8((uint16(op) & 0xFC00) >> 10) }
func (op Opcode) OCF() uint16 { return uint16(op) & 0x03FF }

func (op Opcode) String() string {
	if s, ok := opName[op]; ok {
		return s
	}
	return "Unknown"
}

// Link control commands.
const (
	OpInquiry                       = Opcode(ogfLinkCtl<<10 | 0x0001)
	OpInquiryCancel                 = Opcode(ogfLinkCtl<<10 | 0x0002)
	OpCreateConnection              = Opcode(ogfLinkCtl<<10 | 0x0005)
	OpDisconnect                    = Opcode(ogfLinkCtl<<10 | 0x0006)
	OpCreateConnectionCancel        = Opcode(ogfLinkCtl<<10 | 0x0008)
	OpAcceptConnectionRequest       = Opcode(ogfLinkCtl<<10 | 0x0009)
	OpRejectConnectionRequest       = Opcode(ogfLinkCtl<<10 | 0x000A)
	OpLinkKeyReply                  = Opcode(ogfLinkCtl<<10 | 0x000B)
	OpLinkKeyNegativeReply          = Opcode(ogfLinkCtl<<10 | 0x000C)
	OpPinCodeReply                  = Opcode(ogfLinkCtl<<10 | 0x000D)
	OpPinCodeNegativeReply          = Opcode(ogfLinkCtl<<10 | 0x000E)
	OpAuthenticationRequested       = Opcode(ogfLinkCtl<<10 | 0x0011)
	OpSetConnectionEncryption       = Opcode(ogfLinkCtl<<10 | 0x0013)
	OpRemoteNameRequest             = Opcode(ogfLinkCtl<<10 | 0x0019)
	OpIOCapabilityReply             = Opcode(ogfLinkCtl<<10 | 0x002B)
	OpUserConfirmationReply         = Opcode(ogfLinkCtl<<10 | 0x002C)
	OpUserConfirmationNegativeReply = Opcode(ogfLinkCtl<<10 | 0x002D)
	OpUserPasskeyReply              = Opcode(ogfLinkCtl<<10 | 0x002E)
	OpUserPasskeyNegativeReply      = Opcode(ogfLinkCtl<<10 | 0x002F)
)

// Host control commands.
const (
	OpSetEventMask           = Opcode(ogfHostCtl<<10 | 0x0001)
	OpReset                  = Opcode(ogfHostCtl<<10 | 0x0003)
	OpWritePageTimeout       = Opcode(ogfHostCtl<<10 | 0x0018)
	OpWriteScanEnable        = Opcode(ogfHostCtl<<10 | 0x001A)
	OpWriteClassOfDevice     = Opcode(ogfHostCtl<<10 | 0x0024)
	OpHostBufferSize         = Opcode(ogfHostCtl<<10 | 0x0033)
	OpWriteInquiryMode       = Opcode(ogfHostCtl<<10 | 0x0045)
	OpWriteSimplePairingMode = Opcode(ogfHostCtl<<10 | 0x0056)
	OpWriteLEHostSupported   = Opcode(ogfHostCtl<<10 | 0x006D)
)

// Informational parameters.
const (
	OpReadLocalVersionInformation = Opcode(ogfInfoParam<<10 | 0x0001)
	OpReadLocalSupportedCommands  = Opcode(ogfInfoParam<<10 | 0x0002)
	OpReadLocalSupportedFeatures  = Opcode(ogfInfoParam<<10 | 0x0003)
	OpReadLocalExtendedFeatures   = Opcode(ogfInfoParam<<10 | 0x0004)
	OpReadBufferSize              = Opcode(ogfInfoParam<<10 | 0x0005)
	OpReadBDAddr                  = Opcode(ogfInfoParam<<10 | 0x0009)
)

// LE controller commands.
const (
	OpLESetEventMask                     = Opcode(ogfLECtl<<10 | 0x0001)
	OpLEReadBufferSize                   = Opcode(ogfLECtl<<10 | 0x0002)
	OpLEReadLocalSupportedFeatures       = Opcode(ogfLECtl<<10 | 0x0003)
	OpLESetRandomAddress                 = Opcode(ogfLECtl<<10 | 0x0005)
	OpLESetAdvertisingParameters         = Opcode(ogfLECtl<<10 | 0x0006)
	OpLESetAdvertisingData               = Opcode(ogfLECtl<<10 | 0x0008)
	OpLESetScanResponseData              = Opcode(ogfLECtl<<10 | 0x0009)
	OpLESetAdvertiseEnable               = Opcode(ogfLECtl<<10 | 0x000A)
	OpLESetScanParameters                = Opcode(ogfLECtl<<10 | 0x000B)
	OpLESetScanEnable                    = Opcode(ogfLECtl<<10 | 0x000C)
	OpLECreateConnection                 = Opcode(ogfLECtl<<10 | 0x000D)
	OpLECreateConnectionCancel           = Opcode(ogfLECtl<<10 | 0x000E)
	OpLEEncrypt                          = Opcode(ogfLECtl<<10 | 0x0017)
	OpLERand                             = Opcode(ogfLECtl<<10 | 0x0018)
	OpLEStartEncryption                  = Opcode(ogfLECtl<<10 | 0x0019)
	OpLELongTermKeyReply                 = Opcode(ogfLECtl<<10 | 0x001A)
	OpLELongTermKeyNegativeReply         = Opcode(ogfLECtl<<10 | 0x001B)
	OpLEReadMaximumAdvertisingDataLength = Opcode(ogfLECtl<<10 | 0x003A)
)

var opName = map[Opcode]string{
	OpInquiry:                       "Inquiry",
	OpInquiryCancel:                 "Inquiry Cancel",
	OpCreateConnection:              "Create Connection",
	OpDisconnect:                    "Disconnect",
	OpCreateConnectionCancel:        "Create Connection Cancel",
	OpAcceptConnectionRequest:       "Accept Connection Request",
	OpRejectConnectionRequest:       "Reject Connection Request",
	OpLinkKeyReply:                  "Link Key Request Reply",
	OpLinkKeyNegativeReply:          "Link Key Request Negative Reply",
	OpPinCodeReply:                  "PIN Code Request Reply",
	OpPinCodeNegativeReply:          "PIN Code Request Negative Reply",
	OpAuthenticationRequested:       "Authentication Requested",
	OpSetConnectionEncryption:       "Set Connection Encryption",
	OpRemoteNameRequest:             "Remote Name Request",
	OpIOCapabilityReply:             "IO Capability Request Reply",
	OpUserConfirmationReply:         "User Confirmation Request Reply",
	OpUserConfirmationNegativeReply: "User Confirmation Request Negative Reply",
	OpUserPasskeyReply:              "User Passkey Request Reply",
	OpUserPasskeyNegativeReply:      "User Passkey Request Negative Reply",

	OpSetEventMask:           "Set Event Mask",
	OpReset:                  "Reset",
	OpWritePageTimeout:       "Write Page Timeout",
	OpWriteScanEnable:        "Write Scan Enable",
	OpWriteClassOfDevice:     "Write Class of Device",
	OpHostBufferSize:         "Host Buffer Size",
	OpWriteInquiryMode:       "Write Inquiry Mode",
	OpWriteSimplePairingMode: "Write Simple Pairing Mode",
	OpWriteLEHostSupported:   "Write LE Host Supported",

	OpReadLocalVersionInformation: "Read Local Version Information",
	OpReadLocalSupportedCommands:  "Read Local Supported Commands",
	OpReadLocalSupportedFeatures:  "Read Local Supported Features",
	OpReadLocalExtendedFeatures:   "Read Local Extended Features",
	OpReadBufferSize:              "Read Buffer Size",
	OpReadBDAddr:                  "Read BD_ADDR",

	OpLESetEventMask:                     "LE Set Event Mask",
	OpLEReadBufferSize:                   "LE Read Buffer Size",
	OpLEReadLocalSupportedFeatures:       "LE Read Local Supported Features",
	OpLESetRandomAddress:                 "LE Set Random Address",
	OpLESetAdvertisingParameters:         "LE Set Advertising Parameters",
	OpLESetAdvertisingData:               "LE Set Advertising Data",
	OpLESetScanResponseData:              "LE Set Scan Response Data",
	OpLESetAdvertiseEnable:               "LE Set Advertising Enable",
	OpLESetScanParameters:                "LE Set Scan Parameters",
	OpLESetScanEnable:                    "LE Set Scan Enable",
	OpLECreateConnection:                 "LE Create Connection",
	OpLECreateConnectionCancel:           "LE Create Connection Cancel",
	OpLEEncrypt:                          "LE Encrypt",
	OpLERand:                             "LE Rand",
	OpLEStartEncryption:                  "LE Start Encryption",
	OpLELongTermKeyReply:                 "LE Long Term Key Request Reply",
	OpLELongTermKeyNegativeReply:         "LE Long Term Key Request Negative Reply",
	OpLEReadMaximumAdvertisingDataLength: "LE Read Maximum Advertising Data Length",
}
