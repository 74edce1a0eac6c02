package handover

import "strings"

const concessionBlock = `TERMO DE CONCESSÃO DE EQUIPAMENTO
Colaborador: Maria Souza  Matrícula: 123456
Tipo: Notebook   Marca: Dell   Modelo: Latitude 5420
Nº de Série: abc1234   Patrimônio: 99887
Nota Fiscal: 000123
Chamado: req 0012345   Hostname: brspnb001
Monitor: Dell P2419H   Serial do Monitor: CN0ABC
(x) Mouse  ( ) Teclado  (x) Headset
Assinado digitalmente por Maria Souza
`

const returnBlock = `TERMO DE DEVOLUÇÃO
Tipo: Mini-Desktop   Marca: Lenovo   Modelo: ThinkCentre M70q
Serial: XYZ9876
Nota Fiscal: 4455
Mochila: sim   Carregador: não
Assinatura: Maria Souza
`

const header = "EMPRESA XPTO LTDA\nDepartamento de TI\n\n"

func ratBlock(i int) string {
	var b strings.Builder
	b.WriteString("RELATÓRIO DE ATIVAÇÃO TÉCNICA\n")
	b.WriteString("Termo de Concessão\nModelo: Latitude 5420\n")
	b.WriteString("Termo de Devolução\nModelo: Latitude 7400\n")
	b.WriteString(strings.Repeat("-", i+1))
	b.WriteString("\n")
	return b.String()
}
