package devicetype

// Model tables keyed by the 16-bit device type code a device reports in its
// discovery announcement. The tables are disjoint.

// rmTypes are legacy devices without RF support.
var rmTypes = map[uint16]string{
	0x2737: "Broadlink RM3 Mini",
	0x6507: "Broadlink RM3 Mini",
	0x27c7: "Broadlink RM3 Mini A",
	0x27c2: "Broadlink RM3 Mini B",
	0x6508: "Broadlink RM3 Mini D",
	0x27de: "Broadlink RM3 Mini C",
	0x5f36: "Broadlink RM3 Mini B",
	0x27d3: "Broadlink RM3 Mini KR",
	0x273d: "Broadlink RM Pro Phicomm",
	0x2712: "Broadlink RM2",
	0x2783: "Broadlink RM2 Home Plus",
	0x277c: "Broadlink RM2 Home Plus GDT",
	0x278f: "Broadlink RM Mini Shate",
	0x2221: "Manual RM Device",
}

// rmPlusTypes are legacy devices with RF support.
var rmPlusTypes = map[uint16]string{
	0x272a: "Broadlink RM2 Pro Plus",
	0x2787: "Broadlink RM2 Pro Plus v2",
	0x278b: "Broadlink RM2 Pro Plus BL",
	0x2797: "Broadlink RM2 Pro Plus HYC",
	0x27a1: "Broadlink RM2 Pro Plus R1",
	0x27a6: "Broadlink RM2 Pro PP",
	0x279d: "Broadlink RM3 Pro Plus",
	0x27a9: "Broadlink RM3 Pro Plus v2",
	0x27c3: "Broadlink RM3 Pro",
	0x2223: "Manual RM Pro Device",
}

// rm4Types are newer generation devices without RF support.
var rm4Types = map[uint16]string{
	0x51da: "Broadlink RM4 Mini",
	0x610e: "Broadlink RM4 Mini",
	0x62bc: "Broadlink RM4 Mini",
	0x653a: "Broadlink RM4 Mini",
	0x6070: "Broadlink RM4 Mini C",
	0x62be: "Broadlink RM4 Mini C",
	0x610f: "Broadlink RM4 Mini C",
	0x6539: "Broadlink RM4 Mini C",
	0x520d: "Broadlink RM4 Mini C",
	0x648d: "Broadlink RM4 Mini S",
	0x5216: "Broadlink RM4 Mini",
	0x520c: "Broadlink RM4 Mini",
	0x2225: "Manual RM4 Device",
}

// rm4PlusTypes are newer generation devices with RF support.
var rm4PlusTypes = map[uint16]string{
	0x5213: "Broadlink RM4 Pro",
	0x6026: "Broadlink RM4 Pro",
	0x61a2: "Broadlink RM4 Pro",
	0x649b: "Broadlink RM4 Pro",
	0x653c: "Broadlink RM4 Pro",
	0x520b: "Broadlink RM4 Pro",
	0x6184: "Broadlink RM4C Pro",
	0x2227: "Manual RM4 Pro Device",
}

// unsupportedTypes answer discovery but have no IR/RF blaster.
var unsupportedTypes = map[uint16]string{
	0x0000: "Broadlink SP1",
	0x2711: "Broadlink SP2",
	0x2719: "Honeywell SP2",
	0x7919: "Honeywell SP2",
	0x271a: "Honeywell SP2",
	0x791a: "Honeywell SP2",
	0x2733: "OEM Branded SP Mini",
	0x273e: "OEM Branded SP Mini",
	0x2720: "Broadlink SP Mini",
	0x7d07: "Broadlink SP Mini",
	0x753e: "Broadlink SP 3",
	0x2728: "Broadlink SPMini 2",
	0x2736: "Broadlink SPMini Plus",
	0x2714: "Broadlink A1",
	0x4eb5: "Broadlink MP1",
	0x2722: "Broadlink S1 (SmartOne Alarm Kit)",
	0x4e4d: "Dooya DT360E (DOOYA_CURTAIN_V2) or Hysen Heating Controller",
	0x4ead: "Dooya DT360E (DOOYA_CURTAIN_V2) or Hysen Heating Controller",
	0x947a: "BroadLink Outlet",
}

// OEM rebranded SPMini2 plugs occupy this inclusive range.
const (
	oemRangeStart uint16 = 0x7530
	oemRangeEnd   uint16 = 0x7918
)

// codeSendExceptions are legacy codes that use D0 00 as the code-send header
// and the rm4-style 04 00 query header.
var codeSendExceptions = map[uint16]bool{
	0x5f36: true,
	0x6508: true,
}
