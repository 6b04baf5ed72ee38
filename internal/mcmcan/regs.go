package mcmcan

import "github.com/kstaniek/go-mcmcan/internal/mmio"

// NodeCount is the number of node register blocks in one MCMCAN module.
const NodeCount = 4

// ModuleRegs is the MCMCAN special function register block.
type ModuleRegs struct {
	CLC     mmio.Register32 // 0x000
	_       uint32
	ID      mmio.Register32 // 0x008
	_       [9]uint32
	MCR     mmio.Register32 // 0x030
	BUFADR  mmio.Register32 // 0x034
	_       [2]uint32
	MECR    mmio.Register32 // 0x040
	MESTAT  mmio.Register32 // 0x044
	_       [40]uint32
	OCS     mmio.Register32 // 0x0E8
	KRSTCLR mmio.Register32 // 0x0EC
	KRST1   mmio.Register32 // 0x0F0
	KRST0   mmio.Register32 // 0x0F4
	ACCEN1  mmio.Register32 // 0x0F8
	ACCEN0  mmio.Register32 // 0x0FC
	Node    [NodeCount]NodeRegs
}

// NodeRegs is one node's register block: the M_CAN core registers followed by
// the TC3xx node control registers.
type NodeRegs struct {
	CREL   mmio.Register32 // 0x000
	ENDN   mmio.Register32 // 0x004
	_      uint32
	DBTP   mmio.Register32 // 0x00C
	TEST   mmio.Register32 // 0x010
	RWD    mmio.Register32 // 0x014
	CCCR   mmio.Register32 // 0x018
	NBTP   mmio.Register32 // 0x01C
	TSCC   mmio.Register32 // 0x020
	TSCV   mmio.Register32 // 0x024
	TOCC   mmio.Register32 // 0x028
	TOCV   mmio.Register32 // 0x02C
	_      [4]uint32
	ECR    mmio.Register32 // 0x040
	PSR    mmio.Register32 // 0x044
	TDCR   mmio.Register32 // 0x048
	_      uint32
	IR     mmio.Register32 // 0x050
	IE     mmio.Register32 // 0x054
	ILS    mmio.Register32 // 0x058
	ILE    mmio.Register32 // 0x05C
	_      [8]uint32
	GFC    mmio.Register32 // 0x080
	SIDFC  mmio.Register32 // 0x084
	XIDFC  mmio.Register32 // 0x088
	_      uint32
	XIDAM  mmio.Register32 // 0x090
	HPMS   mmio.Register32 // 0x094
	NDAT1  mmio.Register32 // 0x098
	NDAT2  mmio.Register32 // 0x09C
	RXF0C  mmio.Register32 // 0x0A0
	RXF0S  mmio.Register32 // 0x0A4
	RXF0A  mmio.Register32 // 0x0A8
	RXBC   mmio.Register32 // 0x0AC
	RXF1C  mmio.Register32 // 0x0B0
	RXF1S  mmio.Register32 // 0x0B4
	RXF1A  mmio.Register32 // 0x0B8
	RXESC  mmio.Register32 // 0x0BC
	TXBC   mmio.Register32 // 0x0C0
	TXFQS  mmio.Register32 // 0x0C4
	TXESC  mmio.Register32 // 0x0C8
	TXBRP  mmio.Register32 // 0x0CC
	TXBAR  mmio.Register32 // 0x0D0
	TXBCR  mmio.Register32 // 0x0D4
	TXBTO  mmio.Register32 // 0x0D8
	TXBCF  mmio.Register32 // 0x0DC
	TXBTIE mmio.Register32 // 0x0E0
	TXBCIE mmio.Register32 // 0x0E4
	_      [2]uint32
	TXEFC  mmio.Register32 // 0x0F0
	TXEFS  mmio.Register32 // 0x0F4
	TXEFA  mmio.Register32 // 0x0F8
	_      [81]uint32
	NPCR   mmio.Register32 // 0x240
	_      [111]uint32
}

// CLC
const (
	CLC_DISR = 1 << 0
	CLC_DISS = 1 << 1
)

// MCR
const (
	MCR_CLKSEL_WIDTH = 2
	MCR_CLKSEL_BOTH  = 0b11
	MCR_CCCE         = 1 << 30
	MCR_CI           = 1 << 31
)

// CCCR
const (
	CCCR_INIT = 1 << 0
	CCCR_CCE  = 1 << 1
	CCCR_MON  = 1 << 5
	CCCR_TEST = 1 << 7
	CCCR_FDOE = 1 << 8
	CCCR_BRSE = 1 << 9
)

// NBTP
const (
	NBTP_NTSEG2_POS   = 0
	NBTP_NTSEG2_WIDTH = 7
	NBTP_NTSEG1_POS   = 8
	NBTP_NTSEG1_WIDTH = 8
	NBTP_NBRP_POS     = 16
	NBTP_NBRP_WIDTH   = 9
	NBTP_NSJW_POS     = 25
	NBTP_NSJW_WIDTH   = 7
)

// ECR
const (
	ECR_TEC_POS   = 0
	ECR_TEC_WIDTH = 8
	ECR_REC_POS   = 8
	ECR_REC_WIDTH = 7
	ECR_RP        = 1 << 15
)

// PSR
const (
	PSR_LEC_POS   = 0
	PSR_LEC_WIDTH = 3
	PSR_ACT_POS   = 3
	PSR_ACT_WIDTH = 2
	PSR_EP        = 1 << 5
	PSR_EW        = 1 << 6
	PSR_BO        = 1 << 7
)

// IR
const (
	IR_RF0N = 1 << 0
	IR_RF0F = 1 << 2
	IR_RF0L = 1 << 3
	IR_TC   = 1 << 9
	IR_EP   = 1 << 23
	IR_EW   = 1 << 24
	IR_BO   = 1 << 25
)

// GFC
const (
	GFC_ANFE_POS   = 2
	GFC_ANFS_POS   = 4
	GFC_ANF_WIDTH  = 2
	GFC_ANF_FIFO0  = 0
	GFC_ANF_REJECT = 0b10
)

// RXF0C
const (
	RXF0C_F0SA_POS   = 2
	RXF0C_F0SA_WIDTH = 14
	RXF0C_F0S_POS    = 16
	RXF0C_F0S_WIDTH  = 7
	RXF0C_F0WM_POS   = 24
	RXF0C_F0WM_WIDTH = 7
	RXF0C_F0OM       = 1 << 31
)

// RXF0S
const (
	RXF0S_F0FL_POS   = 0
	RXF0S_F0FL_WIDTH = 7
	RXF0S_F0GI_POS   = 8
	RXF0S_F0GI_WIDTH = 6
	RXF0S_F0PI_POS   = 16
	RXF0S_F0PI_WIDTH = 6
	RXF0S_F0F        = 1 << 24
	RXF0S_RF0L       = 1 << 25
)

// RXF0A
const (
	RXF0A_F0AI_POS   = 0
	RXF0A_F0AI_WIDTH = 6
)

// RXESC
const (
	RXESC_F0DS_POS   = 0
	RXESC_F0DS_WIDTH = 3
)

// TXBC
const (
	TXBC_TBSA_POS   = 2
	TXBC_TBSA_WIDTH = 14
	TXBC_NDTB_POS   = 16
	TXBC_NDTB_WIDTH = 6
	TXBC_TFQS_POS   = 24
	TXBC_TFQS_WIDTH = 6
)

// TXESC
const (
	TXESC_TBDS_POS   = 0
	TXESC_TBDS_WIDTH = 3
)

// NPCR
const (
	NPCR_RXSEL_POS   = 0
	NPCR_RXSEL_WIDTH = 3
	NPCR_LBM         = 1 << 8
)
