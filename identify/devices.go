package identify

// KnownDevice describes a USB serial adapter we recognize by VID:PID,
// together with the development boards it usually shows up on.
type KnownDevice struct {
	VID           uint16
	PID           uint16
	Name          string
	ExpectedPorts int
	Boards        []string
}

// PortFunction maps a known device name to per-interface function labels.
type PortFunction struct {
	DeviceName string
	Functions  []string
}

var KnownDevices = []KnownDevice{
	// FTDI devices
	{0x0403, 0x6010, "FTDI FT2232H", 2, []string{"VMK180", "ZCU102", "Various"}},
	{0x0403, 0x6011, "FTDI FT4232H", 4, []string{"VMK180", "ZCU102"}},
	{0x0403, 0x6014, "FTDI FT232H", 1, []string{"Generic"}},
	{0x0403, 0x6001, "FTDI FT232R", 1, []string{"Generic"}},

	// Xilinx/AMD
	{0x04b4, 0x0008, "Cypress FX3", 4, []string{"Versal VMK180", "ZCU102"}},

	// Microchip PolarFire SoC
	{0x10c4, 0xea71, "Silicon Labs CP210x", 4, []string{"PolarFire SoC"}},
	{0x10c4, 0xea60, "Silicon Labs CP210x", 1, []string{"PolarFire SoC", "Generic"}},

	// STMicroelectronics
	{0x0483, 0x374b, "STM32 ST-LINK", 1, []string{"STM32H563", "STM32 boards"}},
	{0x0483, 0x374e, "STM32 Virtual COM Port", 1, []string{"STM32H563"}},
	{0x0483, 0x5740, "STM32 USB CDC", 1, []string{"USB Relay Controller"}},

	// USB Relay / Generic
	{0x1a86, 0x7523, "CH340 USB-Serial", 1, []string{"USB Relay", "Generic"}},
	{0x067b, 0x2303, "Prolific PL2303", 1, []string{"Generic"}},

	// Debuggers
	{0x0897, 0x0002, "Lauterbach TRACE32", 1, []string{"Debugger"}},
}

var PortFunctions = []PortFunction{
	{"FTDI FT2232H", []string{"UART/JTAG Port A", "UART/JTAG Port B"}},
	{"FTDI FT4232H", []string{"UART0/JTAG", "UART1", "UART2", "UART3"}},
	{"Cypress FX3", []string{"UART0 (Console)", "UART1 (PMC)", "UART2 (Debug)", "UART3"}},
	{"Silicon Labs CP210x", []string{"UART0", "UART1", "UART2", "UART3"}},
}

// LookupKnownDevice returns the catalog entry for a VID:PID pair, or nil.
func LookupKnownDevice(vid, pid uint16) *KnownDevice {
	for i := range KnownDevices {
		if KnownDevices[i].VID == vid && KnownDevices[i].PID == pid {
			return &KnownDevices[i]
		}
	}
	return nil
}

// LookupPortFunction returns the per-interface function label for a known
// device name, or "" when the interface has no entry.
func LookupPortFunction(deviceName string, interfaceNum int) string {
	if deviceName == "" || interfaceNum < 0 {
		return ""
	}
	for _, pf := range PortFunctions {
		if pf.DeviceName != deviceName {
			continue
		}
		if interfaceNum < len(pf.Functions) {
			return pf.Functions[interfaceNum]
		}
		return ""
	}
	return ""
}
